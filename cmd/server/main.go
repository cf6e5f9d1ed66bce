package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clausecheck/clausecheck/internal/api"
	"github.com/clausecheck/clausecheck/internal/backend"
	"github.com/clausecheck/clausecheck/internal/extract"
	"github.com/clausecheck/clausecheck/internal/history"
	"github.com/clausecheck/clausecheck/internal/metrics"
	"github.com/clausecheck/clausecheck/internal/orchestrator"
	"github.com/clausecheck/clausecheck/internal/queue"
	"github.com/clausecheck/clausecheck/internal/rules"
	"github.com/clausecheck/clausecheck/internal/scanner"
	"github.com/clausecheck/clausecheck/pkg/logging"
	"github.com/clausecheck/clausecheck/pkg/tracing"
)

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("clausecheck service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("clausecheck")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Get default values from environment variables, with fallbacks
	portDefault := getEnv("PORT", "8080")
	dbPathDefault := getEnv("DB_PATH", "clausecheck.db")
	rulesDirDefault := getEnv("RULES_DIR", "rules")
	backendURLDefault := getEnv("BACKEND_URL", "")
	ollamaURLDefault := getEnv("OLLAMA_URL", "http://localhost:11434")
	ollamaModelDefault := getEnv("OLLAMA_MODEL", backend.DefaultOllamaModel)
	useOllamaDefault := getEnvBool("USE_OLLAMA", false)
	redisAddrDefault := getEnv("REDIS_ADDR", "")
	browserDefault := getEnvBool("BROWSER_ENABLED", false)
	browserURLDefault := getEnv("BROWSER_URL", "")

	var (
		port        = flag.String("port", portDefault, "Server port (env: PORT)")
		dbPath      = flag.String("db", dbPathDefault, "Database file path (env: DB_PATH)")
		rulesDir    = flag.String("rules", rulesDirDefault, "Clause rule library directory (env: RULES_DIR)")
		backendURL  = flag.String("backend-url", backendURLDefault, "Remote analysis service URL (env: BACKEND_URL)")
		ollamaURL   = flag.String("ollama-url", ollamaURLDefault, "Ollama API URL (env: OLLAMA_URL)")
		ollamaModel = flag.String("ollama-model", ollamaModelDefault, "Ollama model to use (env: OLLAMA_MODEL)")
		useOllama   = flag.Bool("use-ollama", useOllamaDefault, "Use a local Ollama model when no remote backend is set (env: USE_OLLAMA)")
		redisAddr   = flag.String("redis-addr", redisAddrDefault, "Redis address for background re-checks; empty disables them (env: REDIS_ADDR)")
		browserOn   = flag.Bool("browser", browserDefault, "Render pages in headless Chrome before extraction (env: BROWSER_ENABLED)")
		browserURL  = flag.String("browser-url", browserURLDefault, "Remote browser control URL; empty launches locally (env: BROWSER_URL)")
		recheckCron = flag.String("recheck-interval", getEnv("RECHECK_INTERVAL", "@every 12h"), "Re-check sweep schedule (env: RECHECK_INTERVAL)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the clause rule library and keep it fresh on disk changes
	ruleStore, err := rules.NewStore(*rulesDir, logger)
	if err != nil {
		logger.Error("failed to load clause rule library", "error", err, "rules_dir", *rulesDir)
		os.Exit(1)
	}
	ruleWatcher, err := rules.NewWatcher(ruleStore, 0, logger)
	if err != nil {
		logger.Warn("rule watcher unavailable, library is load-once", "error", err)
	} else {
		go func() {
			if err := ruleWatcher.Run(ctx); err != nil {
				logger.Error("rule watcher stopped", "error", err)
			}
		}()
	}

	// Initialize database
	db, err := history.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "database_path", *dbPath)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	store := history.NewStore(db, history.DefaultCapacity)

	m := metrics.New()

	// Keep the database connection gauges fresh
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.UpdateDBStats(db.Conn())
		}
	}()

	// Pick the AI analysis backend: remote service first, local model
	// second, rules-only otherwise
	var ai backend.Backend
	switch {
	case *backendURL != "":
		ai = backend.NewRemote(*backendURL, logger)
		logger.Info("remote analysis backend configured", "url", *backendURL)
	case *useOllama:
		ollamaBackend, err := backend.NewOllama(*ollamaURL, *ollamaModel, logger)
		if err != nil {
			logger.Warn("failed to initialize Ollama backend, falling back to rule-based analysis",
				"error", err,
				"ollama_url", *ollamaURL,
				"ollama_model", *ollamaModel,
			)
		} else {
			ai = ollamaBackend
			logger.Info("Ollama backend initialized", "model", *ollamaModel, "url", *ollamaURL)
		}
	default:
		logger.Info("no AI backend configured, using rule-based analysis only")
	}

	// Content stabilizer, with optional headless rendering
	var browser *extract.Browser
	if *browserOn {
		browser, err = extract.NewBrowser(*browserURL)
		if err != nil {
			logger.Warn("failed to start headless browser, using static fetches", "error", err)
		} else {
			defer browser.Close()
			logger.Info("headless browser ready")
		}
	}
	snaps := extract.NewService(browser, extract.DefaultOptions(), logger)

	sc := scanner.New(ruleStore)
	orch := orchestrator.New(ai, sc, m, logger)

	// Background re-check queue (optional)
	var queueClient *queue.Client
	if *redisAddr != "" {
		queueClient = queue.NewClient(queue.ClientConfig{RedisAddr: *redisAddr})
		defer queueClient.Close()

		worker := queue.NewWorker(
			queue.WorkerConfig{RedisAddr: *redisAddr, Concurrency: 2},
			store, sc, queueClient, snaps.Fetch, m, logger,
		)
		if err := worker.Start(); err != nil {
			logger.Error("failed to start re-check worker", "error", err)
			os.Exit(1)
		}
		defer worker.Shutdown()

		scheduler, err := queue.NewScheduler(*redisAddr, *recheckCron, logger)
		if err != nil {
			logger.Warn("re-check scheduler unavailable", "error", err)
		} else {
			if err := scheduler.Start(); err != nil {
				logger.Warn("failed to start re-check scheduler", "error", err)
			} else {
				defer scheduler.Shutdown()
			}
		}
		logger.Info("background re-checks enabled", "redis", *redisAddr)
	}

	// Initialize API handler
	var apiQueue api.QueueClient
	if queueClient != nil {
		apiQueue = queueClient
	}
	apiHandler := api.NewHandler(orch, store, snaps, apiQueue, m, logger)

	// Wrap handler with middleware chain: HTTP logging -> tracing -> handlers
	handler := logging.HTTPLoggingMiddleware(logger)(
		tracing.HTTPMiddleware("clausecheck")(apiHandler),
	)

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("clausecheck service starting",
			"port", *port,
			"database", *dbPath,
			"rules_dir", *rulesDir,
			"backend_url", *backendURL,
			"ollama_enabled", *useOllama,
			"browser_enabled", browser != nil,
			"recheck_enabled", *redisAddr != "",
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
