package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go_jobs_backend/config"
	"go_jobs_backend/handlers"
	"go_jobs_backend/health"
	"go_jobs_backend/models"
	"go_jobs_backend/queue"
	"go_jobs_backend/routes"
	"go_jobs_backend/scheduler"
	"go_jobs_backend/services"
	"go_jobs_backend/services/datafetcher"
	"go_jobs_backend/worker"

	"github.com/gin-gonic/gin"
)

// dbInitialized tracks whether database has been successfully initialized
// so the /ready probe can report readiness from any goroutine
var dbInitialized bool
var dbInitMutex sync.RWMutex

// engine bundles the long-running components for shutdown
type engine struct {
	scheduler *scheduler.Scheduler
	pools     []*worker.Pool
	monitor   *health.Monitor
	stream    *services.HealthStream
	mirror    *services.MongoMirror
	archive   *services.LocalArchive
}

func main() {
	log.Println("==============================================")
	log.Println("  Market Jobs Engine - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Probes come up first so the platform can see the service before
	// the database is ready
	setupProbes(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database and start the engine in background
	ctx, cancel := context.WithCancel(context.Background())
	eng := &engine{}
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (probes only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		if err := models.SeedDefaultOperator(db, getOperatorPassword()); err != nil {
			log.Printf("Warning: Could not seed operator user: %v", err)
		}

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		startEngine(ctx, cfg, eng, router)
		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, cancel, eng)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateJobModels(db); err != nil {
		return err
	}
	if err := models.MigrateMarketModels(db); err != nil {
		return err
	}
	if err := models.MigrateOperatorModels(db); err != nil {
		return err
	}
	return nil
}

// startEngine wires the queue store, scheduler, worker pools, health
// monitor and operator routes
func startEngine(ctx context.Context, cfg *config.Config, eng *engine, router *gin.Engine) {
	db := config.DB
	store := queue.NewGormStore(db)

	// Optional MongoDB mirror of collected candle batches
	mirror, err := services.NewMongoMirror(cfg.MongoURI)
	if err != nil {
		log.Printf("MongoDB mirror unavailable: %v", err)
	}
	eng.mirror = mirror

	// Optional local candle archive
	archive, err := services.NewLocalArchive("")
	if err != nil {
		log.Printf("Local candle archive unavailable: %v", err)
		archive = nil
	}
	eng.archive = archive

	catalog := services.NewCatalogService(db)
	candles := services.NewCandleService(db, mirror, archive)
	fetcher := datafetcher.NewDataFetcher(cfg.CandleAPIURL)
	emailSender := services.NewRelayEmailSender(cfg.EmailRelayURL)
	pushService := services.NewPushService(db, services.NewRelayPushSender(cfg.PushRelayURL))

	// Worker pools, one per queue
	candlePool := worker.NewPool(scheduler.CandleQueue, store, worker.Config{
		Concurrency:  cfg.CandleConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		StallTimeout: cfg.StallTimeout,
	})
	candlePool.RegisterHandler(scheduler.JobCollectCandles, handlers.CollectCandles(fetcher, candles))

	notifyPool := worker.NewPool(scheduler.NotificationQueue, store, worker.Config{
		Concurrency:  cfg.NotificationConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		StallTimeout: cfg.StallTimeout,
	})
	notifyPool.RegisterHandler(scheduler.JobSendEmail, handlers.SendEmail(emailSender))
	notifyPool.RegisterHandler(scheduler.JobSendPush, handlers.SendPush(pushService))

	candlePool.Start(ctx)
	notifyPool.Start(ctx)
	eng.pools = []*worker.Pool{candlePool, notifyPool}

	// Scheduler with the default trigger table
	sched := scheduler.NewScheduler()
	scheduler.RegisterDefaultTriggers(sched, store, catalog, catalog, scheduler.BaseDelays(cfg.TriggerBaseDelays))
	if err := sched.Start(); err != nil {
		log.Printf("ERROR: Failed to start scheduler: %v", err)
	} else {
		eng.scheduler = sched
	}

	// Health monitor with the live snapshot stream
	stream := services.NewHealthStream()
	eng.stream = stream

	monitor := health.NewMonitor(store, health.Config{
		SampleInterval:  cfg.HealthSampleInterval,
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.CleanupRetention,
	})
	monitor.SetPublisher(stream)
	monitor.Start(ctx)
	eng.monitor = monitor

	routes.SetupRoutes(router, db, store, monitor, stream, cfg.JWTSecret)
}

// getOperatorPassword returns the seed password for the default operator
func getOperatorPassword() string {
	if pw := os.Getenv("OPERATOR_PASSWORD"); pw != "" {
		return pw
	}
	return "change-me"
}

// setupProbes sets up liveness and readiness endpoints
func setupProbes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Jobs Engine",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if the engine is ready
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for probes to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the engine and server
func gracefulShutdown(server *http.Server, cancel context.CancelFunc, eng *engine) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop producing new work first, then drain the consumers
	if eng.scheduler != nil {
		eng.scheduler.Stop()
	}
	for _, pool := range eng.pools {
		pool.Stop()
	}
	if eng.monitor != nil {
		eng.monitor.Stop()
	}
	if eng.stream != nil {
		eng.stream.Shutdown()
	}
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if eng.mirror != nil {
		eng.mirror.Close()
	}
	if eng.archive != nil {
		eng.archive.Close()
	}
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
