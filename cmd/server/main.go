package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"market-chat/internal/chat"
	"market-chat/internal/config"
	"market-chat/internal/db"
	"market-chat/internal/logger"
	myMiddleware "market-chat/internal/middleware"
	"market-chat/internal/product"
	"market-chat/internal/user"
)

func main() {
	// 1. Config & Logger
	cfg, notice := config.Load()

	zlog, err := logger.New(cfg.Development())
	if err != nil {
		panic(err)
	}
	defer zlog.Sync()
	if notice != "" {
		zlog.Info(notice)
	}

	if cfg.DSN == "" {
		zlog.Fatal("❌ DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		zlog.Fatal("❌ JWT_SECRET is not set")
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		zlog.Fatalw("failed to connect to DB", "err", err)
	}
	zlog.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		zlog.Fatalw("migration failed", "err", err)
	}
	zlog.Info("✅ Database schema initialized")

	// 3. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 4. Initialize Product Feature
	productRepo := product.NewRepository(database.Conn)
	productService := product.NewService(productRepo)
	productHandler := product.NewHandler(productService)

	// 5. Initialize Chat Feature
	// The registry is pluggable: Redis-backed when REDIS_ADDR is set,
	// in-process fan-out otherwise.
	local := chat.NewLocalRegistry(zlog)
	var registry chat.Registry = local
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			zlog.Fatalw("failed to connect to Redis", "err", err)
		}
		zlog.Info("✅ Connected to Redis")
		registry = chat.NewRedisRegistry(redisClient, local, zlog)
	}

	chatRepo := chat.NewRepository(database.Conn)
	chatHandler := chat.NewHandler(registry, chatRepo, productService, userService, zlog)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)

		r.Post("/api/products", productHandler.Create)
		r.Get("/api/products", productHandler.List)
		r.Get("/api/products/{productID}", productHandler.Get)

		// Real-time product chat
		r.Get("/ws/chat/{productID}", chatHandler.ServeWs)
		r.Get("/api/chat/{productID}/messages", chatHandler.GetChatHistory)
	})

	zlog.Infof("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		zlog.Fatalw("server stopped", "err", err)
	}
}
