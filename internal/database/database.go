package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps *sql.DB with the dialect it was opened with. Queries are written
// with ? placeholders and passed through Rebind before execution.
type DB struct {
	*sql.DB
	Driver string
}

var (
	db   *DB
	once sync.Once
)

// Init opens the process-wide database once.
func Init(driver, dsn string) error {
	var err error
	once.Do(func() {
		db, err = Open(driver, dsn)
	})
	return err
}

func GetDB() *DB {
	return db
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// Open connects to the given driver, creates the schema and runs migrations.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	// WAL mode and busy timeout: single writer, many readers
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{DB: sqlDB, Driver: DriverSQLite}
	if err := d.migrate(sqliteSchema); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func openPostgres(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)

	d := &DB{DB: sqlDB, Driver: DriverPostgres}
	if err := d.migrate(postgresSchema); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(schema string) error {
	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Columns added after the first release. Errors mean the column exists.
	_, _ = d.Exec(`ALTER TABLE documents ADD COLUMN credit_source TEXT NOT NULL DEFAULT ''`)
	_, _ = d.Exec(`ALTER TABLE documents ADD COLUMN status TEXT NOT NULL DEFAULT 'ready'`)
	_, _ = d.Exec(`ALTER TABLE users ADD COLUMN stripe_customer_id TEXT`)
	return nil
}

// Rebind rewrites ? placeholders to $n for postgres.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
