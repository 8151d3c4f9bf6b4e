package router

import (
	"strings"
	"time"

	"asklegal/internal/config"
	"asklegal/internal/database"
	"asklegal/internal/handler"
	"asklegal/internal/middleware"
	"asklegal/internal/repository"
	"asklegal/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Users        *service.UserService
	JWT          *service.JWTService
	Credits      *service.CreditService
	Intake       *service.IntakeService
	Documents    *service.DocumentService
	Suggestions  *service.SuggestionService
	Stripe       *service.StripeService
	SystemConfig *service.SystemConfigService
}

// NewServices builds the production services over the global database and
// configuration.
func NewServices() (*Services, error) {
	store, err := service.NewSessionStore()
	if err != nil {
		return nil, err
	}
	jwtService := service.NewJWTService()
	credits := service.NewCreditService()
	intake := service.NewIntakeService(store)
	return &Services{
		Users:        service.NewUserServiceWithRepo(repository.NewUserRepository(database.GetDB()), jwtService),
		JWT:          jwtService,
		Credits:      credits,
		Intake:       intake,
		Documents:    service.NewDocumentService(intake, credits),
		Suggestions:  service.NewSuggestionService(intake),
		Stripe:       service.NewStripeService(credits),
		SystemConfig: service.NewSystemConfigService(),
	}, nil
}

func Setup(svc *Services, db *database.DB) *gin.Engine {
	r := gin.Default()
	cfg := config.Get()

	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	authLimiter := middleware.NewThrottle(cfg.RateLimitAuthRPS, 10)
	chatLimiter := middleware.NewThrottle(cfg.RateLimitChatRPS, 5)

	accountHandler := handler.NewAccountHandler(svc.Users, svc.JWT, svc.Credits)
	chatHandler := handler.NewChatHandler(svc.Intake)
	documentHandler := handler.NewDocumentHandler(svc.Documents)
	usageHandler := handler.NewUsageHandler(svc.Credits)
	suggestHandler := handler.NewSuggestHandler(svc.Suggestions)
	stripeHandler := handler.NewStripeHandler(svc.Stripe)
	systemHandler := handler.NewSystemHandler(svc.SystemConfig, db)

	r.GET("/health", systemHandler.Health)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.Use(authLimiter.PerClient())
		{
			auth.POST("/register", accountHandler.Register)
			auth.POST("/login", accountHandler.Login)
		}

		// Stripe authenticates webhooks by signature, not JWT.
		api.POST("/stripe/webhook", stripeHandler.Webhook)

		authed := api.Group("")
		authed.Use(middleware.RequireUser(svc.JWT))
		{
			authed.GET("/me", accountHandler.Me)
			authed.PUT("/me/password", accountHandler.ChangePassword)

			chat := authed.Group("/step1-chat")
			chat.Use(chatLimiter.PerAccount())
			{
				chat.POST("", chatHandler.Turn)
				chat.POST("/start", chatHandler.Start)
				chat.GET("/:id", chatHandler.Get)
				chat.DELETE("/:id", chatHandler.Delete)
			}

			authed.POST("/generate-document", chatLimiter.PerAccount(), documentHandler.Generate)
			authed.GET("/documents", documentHandler.List)
			authed.GET("/documents/:id", documentHandler.Get)

			authed.GET("/usage", usageHandler.Get)
			authed.POST("/usage", usageHandler.Consume)
			authed.POST("/usage/verify", usageHandler.Verify)

			authed.POST("/suggested-replies", chatLimiter.PerAccount(), suggestHandler.Suggest)

			authed.POST("/billing/checkout", stripeHandler.Checkout)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.RequireUser(svc.JWT))
		admin.Use(middleware.RequireAdmin(repository.NewUserRepository(db)))
		{
			admin.GET("/llm/retry-config", systemHandler.GetRetryConfig)
			admin.PUT("/llm/retry-config", systemHandler.UpdateRetryConfig)
			admin.POST("/users/:id/credits", usageHandler.Grant)
			admin.POST("/users/:id/usage/verify", usageHandler.VerifyUser)
		}
	}

	return r
}

func corsConfig(origins string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		// Credentials cannot be combined with a literal wildcard.
		c.AllowOriginFunc = func(string) bool { return true }
		return c
	}
	c.AllowOrigins = allowed
	return c
}
