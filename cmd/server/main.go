package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/handlers"
	"boardroom/internal/jobs"
	"boardroom/internal/logging"
	"boardroom/internal/middleware"
	"boardroom/internal/orchestrator"
	"boardroom/internal/services"
	"boardroom/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Boardroom Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.MongoDB)

	// Generation calls cannot run without a provider key; fail fast.
	if cfg.GeminiAPIKey == "" {
		log.Fatal("❌ GEMINI_API_KEY environment variable is required")
	}

	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize database indexes: %v", err)
	}
	log.Println("✅ MongoDB connected and indexes ensured")

	// Local JWT auth. With no secret set, auth is disabled in dev mode only.
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("✅ Local JWT auth initialized")
	} else {
		environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
		if environment == "production" || environment == "prod" {
			log.Fatal("❌ JWT_SECRET is required in production")
		}
		log.Println("⚠️  JWT_SECRET not set - auth disabled (development mode only)")
	}

	// Services
	agentService, err := services.NewAgentService(mongoDB)
	if err != nil {
		log.Fatalf("❌ Failed to load persona seeds: %v", err)
	}
	sessionService := services.NewSessionService(mongoDB)
	knowledgeService := services.NewKnowledgeService(mongoDB)
	taskService := services.NewTaskService(mongoDB)
	directiveService := services.NewDirectiveService(mongoDB)
	canvasService := services.NewCanvasService()
	userService := services.NewUserService(mongoDB, jwtAuth, agentService)

	connManager := services.NewConnectionManager()
	metrics := services.InitMetrics(connManager)
	connManager.SetMetrics(metrics)

	geminiClient := services.NewGeminiClient(cfg.GeminiAPIKey)
	geminiClient.SetMetrics(metrics)

	turnService := services.NewTurnService(services.TurnServiceDeps{
		Generator:  geminiClient,
		Sessions:   sessionService,
		Agents:     agentService,
		Knowledge:  knowledgeService,
		Tasks:      taskService,
		Directives: directiveService,
		Canvas:     canvasService,
		Conns:      connManager,
		Metrics:    metrics,
	}, orchestrator.InvokerConfig{
		CallTimeout:    cfg.GenerationTimeout,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		HistoryWindow:  cfg.HistoryWindow,
	}, cfg.DefaultModel, cfg.RateLimit)
	log.Println("✅ Services initialized")

	// Background jobs
	jobScheduler := jobs.NewScheduler()
	if err := jobScheduler.Register("0 2 * * *", jobs.NewStaleSessionCleanupJob(sessionService, cfg.StaleSessionAge)); err != nil {
		log.Fatalf("❌ Failed to register cleanup job: %v", err)
	}
	jobScheduler.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Boardroom v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    25 * 1024 * 1024, // attachments ride inline in message bodies
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("boardroom")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongoDB, connManager)
	authHandler := handlers.NewAuthHandler(userService)
	agentHandler := handlers.NewAgentHandler(agentService, sessionService)
	sessionHandler := handlers.NewSessionHandler(sessionService, turnService, canvasService)
	chatHandler := handlers.NewChatHandler(turnService, sessionService)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeService)
	taskHandler := handlers.NewTaskHandler(taskService)
	directiveHandler := handlers.NewDirectiveHandler(directiveService)
	canvasHandler := handlers.NewCanvasHandler(canvasService)
	wsHandler := handlers.NewWebSocketHandler(connManager, turnService, metrics)

	// Routes
	app.Get("/health", healthHandler.Handle)

	authRoutes := app.Group("/api/auth", middleware.AuthRateLimiter())
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)

	api := app.Group("/api", middleware.LocalAuthMiddleware(jwtAuth), middleware.APIRateLimiter(120))

	api.Get("/agents", agentHandler.List)
	api.Post("/agents", agentHandler.Create)
	api.Get("/agents/:id", agentHandler.Get)
	api.Put("/agents/:id", agentHandler.Update)
	api.Delete("/agents/:id", agentHandler.Delete)
	api.Post("/agents/:id/chat", agentHandler.OpenChat)

	api.Get("/sessions", sessionHandler.List)
	api.Post("/sessions", sessionHandler.Create)
	api.Get("/sessions/:id", sessionHandler.Get)
	api.Delete("/sessions/:id", sessionHandler.Delete)
	api.Post("/sessions/:id/participants", sessionHandler.ToggleParticipant)

	api.Get("/sessions/:id/messages", chatHandler.Transcript)
	api.Post("/sessions/:id/messages", chatHandler.SendMessage)
	api.Post("/sessions/:id/stop", chatHandler.Stop)
	api.Post("/messages/:messageId/feedback", chatHandler.Feedback)

	api.Get("/sessions/:id/canvas", canvasHandler.Get)
	api.Put("/sessions/:id/canvas", canvasHandler.Update)
	api.Delete("/sessions/:id/canvas", canvasHandler.Clear)
	api.Get("/sessions/:id/canvas/preview", canvasHandler.Preview)

	api.Get("/knowledge", knowledgeHandler.List)
	api.Post("/knowledge", knowledgeHandler.Create)
	api.Delete("/knowledge/:id", knowledgeHandler.Delete)

	api.Get("/tasks", taskHandler.List)
	api.Post("/tasks", taskHandler.Create)
	api.Put("/tasks/:id/status", taskHandler.UpdateStatus)
	api.Delete("/tasks/:id", taskHandler.Delete)

	api.Get("/directives", directiveHandler.List)
	api.Post("/directives", directiveHandler.Create)
	api.Put("/directives/:id", directiveHandler.Toggle)
	api.Delete("/directives/:id", directiveHandler.Delete)

	// WebSocket transcript subscription (token accepted via ?token= query)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/sessions/:id", middleware.LocalAuthMiddleware(jwtAuth))
	app.Get("/ws/sessions/:id", websocket.New(wsHandler.Handle, websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}))

	log.Printf("🌐 Server listening on port %s", cfg.Port)
	log.Printf("💬 WebSocket endpoint: ws://localhost:%s/ws/sessions/:id", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: stale session cleanup (daily 2 AM, retention %v)", cfg.StaleSessionAge)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		jobScheduler.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
