package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabedit/internal/auth"
	"collabedit/internal/config"
	"collabedit/internal/handler"
	"collabedit/internal/middleware"
	"collabedit/internal/realtime"
	"collabedit/internal/sandbox"
	authSvc "collabedit/internal/service/auth"
	serviceCollab "collabedit/internal/service/collab"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Structured logging to stdout, optionally teed to a timestamped file
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := config.NewLogger(logOut, cfg.Environment)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store", cfg.Store,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// JWKS takes precedence; a shared secret is for dev and tests
	var jwtVerifier auth.JWTVerifier
	var err error
	switch {
	case cfg.JWKSURL != "":
		jwtVerifier, err = auth.NewJWKSVerifier(cfg.JWKSURL, logger)
	case cfg.JWTSecret != "":
		jwtVerifier, err = auth.NewHMACVerifier(cfg.JWTSecret, logger)
	default:
		err = errors.New("either JWKS_URL or JWT_SECRET must be set")
	}
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.close()

	// Live editing
	cache, err := realtime.NewDocumentCache(cfg.CacheMaxEntries)
	if err != nil {
		log.Fatalf("Failed to create document cache: %v", err)
	}
	hub := realtime.NewHub(realtime.NewRegistry(), cache, st.projects, st.states, st.files, st.txManager, config.MaxFileContentBytes, logger)
	go hub.Run(ctx)

	runner, err := sandbox.NewRunner(cfg.RunnersConfig, cfg.RunTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to load runners: %v", err)
	}

	// Services
	authorizer := authSvc.NewRoleAuthorizer()
	identity := serviceCollab.NewIdentityService(st.users, logger)
	projectService := serviceCollab.NewProjectService(st.projects, st.states, st.files, st.txManager, identity, authorizer, logger)
	fileService := serviceCollab.NewFileService(st.projects, st.states, st.files, st.txManager, authorizer, cache, hub, runner, logger)
	snapshotService := serviceCollab.NewSnapshotService(st.projects, st.states, st.files, st.txManager, authorizer, cache, hub, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, &handler.Handlers{
		Projects:  handler.NewProjectHandler(projectService, logger),
		Files:     handler.NewFileHandler(fileService, logger),
		Snapshots: handler.NewSnapshotHandler(snapshotService, logger),
		Users:     handler.NewUserHandler(identity, logger),
		WS:        handler.NewWSHandler(hub, cfg.CORSOriginList(), config.MaxFileContentBytes, logger),
	})

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Logging → Auth → Recovery → Routes
	// Recovery sits inside Auth so panics are logged with the user
	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)
	h = middleware.AuthMiddleware(jwtVerifier, identity, logger)(h)
	h = middleware.RequestLogger(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOriginList(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		// Disabled so WebSocket connections are not cut off
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
