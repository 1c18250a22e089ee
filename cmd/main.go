package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/config"
	"catalog-import-service/internal/engine"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/staging"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Catalog Import API
// @version 1.2.0
// @description Bulk product import service: staged file uploads, column mapping, validation and streaming import execution with multi-tenant support
// @termsOfService http://swagger.io/terms/

// @contact.name Catalog Import API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8094
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	// Set Redis password from GCP Secret Manager
	redisOpts.Password = secrets.GetRedisPassword()
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (caching will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repository and staging store
	jobsRepo := repository.NewImportJobsRepository(db, redisClient)
	stagingStore, err := staging.NewStore(cfg.StagingDir)
	if err != nil {
		log.Fatal("Failed to initialize staging store:", err)
	}

	// Initialize image task publisher only if NATS_URL is set
	var imagePublisher *events.ImageTaskPublisher
	if os.Getenv("NATS_URL") != "" {
		imagePublisher, err = events.NewImageTaskPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize image task publisher: %v (continuing without image downloads)", err)
		} else {
			log.Println("✓ Image task publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping image task publisher initialization")
	}
	defer func() {
		if imagePublisher != nil {
			imagePublisher.Close()
		}
	}()

	// Initialize catalog client and engine
	catalogClient := clients.NewCatalogClient()
	importEngine := engine.New(jobsRepo, catalogClient, taskPublisherOrNoop(imagePublisher), stagingStore, logger)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(jobsRepo, stagingStore, importEngine, logger)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("catalog-import-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("catalog-import-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "catalog_import_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	staffServiceURL := os.Getenv("STAFF_SERVICE_URL")
	if staffServiceURL == "" {
		staffServiceURL = "http://staff-service:8080"
	}
	rbacMw := rbac.NewMiddlewareWithURL(staffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("catalog-import-service"))
	router.Use(gosharedmw.CompressionMiddleware())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Initialize Istio auth middleware for Keycloak JWT validation
	istioAuthLogger := logrus.NewEntry(logger).WithField("component", "istio_auth")
	istioAuth := gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: true, // Allow X-User-ID, X-Tenant-ID during migration
		Logger:             istioAuthLogger,
	})

	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
		api.Use(middleware.TenantMiddleware())
	} else {
		api.Use(istioAuth)
	}

	// API routes
	imports := api.Group("/imports")
	{
		// Read operations - require products:read permission
		imports.GET("", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.ListImportJobs)
		imports.GET("/fields", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetTargetFields)
		imports.GET("/template", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImportTemplate)
		imports.GET("/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImportJob)
		imports.GET("/:id/preview", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.PreviewImportJob)

		// Mutations - require products:import permission
		imports.POST("", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.CreateImportJob)
		imports.PUT("/:id/mapping", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.SaveMapping)
		imports.POST("/:id/validate", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.ValidateImportJob)
		imports.POST("/:id/execute", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.ExecuteImportJob)
		imports.POST("/:id/retry", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.RetryImportJob)
		imports.POST("/:id/cancel", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.CancelImportJob)
		imports.DELETE("/:id", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.DeleteImportJob)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog import service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down catalog-import-service...")

	// Shutdown tracer provider
	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Catalog import service stopped")
}

// taskPublisherOrNoop substitutes a no-op publisher when NATS is not
// configured, so imports still run and only image downloads are skipped.
func taskPublisherOrNoop(p *events.ImageTaskPublisher) engine.TaskPublisher {
	if p != nil {
		return p
	}
	return noopTaskPublisher{}
}

type noopTaskPublisher struct{}

func (noopTaskPublisher) Publish(models.ImportImageTask) error { return nil }
