package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	is_admin INTEGER DEFAULT 0,
	stripe_customer_id TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_users_stripe_customer ON users(stripe_customer_id);

CREATE TABLE IF NOT EXISTS document_usage (
	user_id TEXT PRIMARY KEY,
	monthly_limit INTEGER NOT NULL DEFAULT 0,
	monthly_remaining INTEGER NOT NULL DEFAULT 0 CHECK (monthly_remaining >= 0),
	one_time_limit_per_purchase INTEGER NOT NULL DEFAULT 0,
	one_time_remaining INTEGER NOT NULL DEFAULT 0 CHECK (one_time_remaining >= 0),
	api_generated_total INTEGER NOT NULL DEFAULT 0,
	monthly_period_start DATETIME,
	monthly_period_end DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	plan_id TEXT NOT NULL DEFAULT '',
	stripe_subscription_id TEXT UNIQUE,
	current_period_start DATETIME,
	current_period_end DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user_created ON subscriptions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	is_renewal INTEGER NOT NULL DEFAULT 0,
	amount TEXT NOT NULL DEFAULT '0',
	currency TEXT NOT NULL DEFAULT 'usd',
	stripe_session_id TEXT UNIQUE,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, status);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	credit_source TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'ready',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user_time ON documents(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS intake_sessions (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS system_config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	is_admin BOOLEAN DEFAULT FALSE,
	stripe_customer_id TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_stripe_customer ON users(stripe_customer_id);

CREATE TABLE IF NOT EXISTS document_usage (
	user_id TEXT PRIMARY KEY,
	monthly_limit INTEGER NOT NULL DEFAULT 0,
	monthly_remaining INTEGER NOT NULL DEFAULT 0 CHECK (monthly_remaining >= 0),
	one_time_limit_per_purchase INTEGER NOT NULL DEFAULT 0,
	one_time_remaining INTEGER NOT NULL DEFAULT 0 CHECK (one_time_remaining >= 0),
	api_generated_total INTEGER NOT NULL DEFAULT 0,
	monthly_period_start TIMESTAMPTZ,
	monthly_period_end TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	plan_id TEXT NOT NULL DEFAULT '',
	stripe_subscription_id TEXT UNIQUE,
	current_period_start TIMESTAMPTZ,
	current_period_end TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user_created ON subscriptions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	is_renewal BOOLEAN NOT NULL DEFAULT FALSE,
	amount NUMERIC(12,2) NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'usd',
	stripe_session_id TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, status);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	credit_source TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'ready',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user_time ON documents(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS intake_sessions (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS system_config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ DEFAULT NOW()
);
`
