package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/config"
	"github.com/StepsArtworks/rollcall/internal/gateway"
	httptransport "github.com/StepsArtworks/rollcall/internal/http"
	"github.com/StepsArtworks/rollcall/internal/msgraph"
	"github.com/StepsArtworks/rollcall/internal/persistence/sqlite"
	"github.com/StepsArtworks/rollcall/internal/workbookfile"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close local store", "error", cerr)
		}
	}()

	if err := store.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	now := time.Now

	var provider application.TokenProvider
	if !cfg.Offline() {
		provider = msgraph.NewIdentityClient(nil, cfg.AuthorityURL, cfg.ClientID, cfg.RedirectURL, cfg.Scopes, logger)
	}

	identity := application.NewIdentityService(provider, store, cfg.LocalPasswordHash, now, logger)
	identity.Restore(ctx)

	sessions := application.NewSessionManager(store, cfg.SessionTTL, now, nil, logger)

	var workbook gateway.Workbook
	var messenger gateway.Messenger
	var tokens gateway.TokenSource
	if cfg.Offline() {
		book, err := workbookfile.Open(cfg.WorkbookPath, logger)
		if err != nil {
			logger.Error("failed to open workbook file", "error", err, "path", cfg.WorkbookPath)
			os.Exit(1)
		}
		workbook = book
	} else {
		client := msgraph.NewClient(nil, "", cfg.WorkbookID, identity, logger)
		workbook = client
		messenger = client
		tokens = identity
	}

	dataGateway := gateway.NewGateway(workbook, messenger, tokens, store, cfg.Team, cfg.Channel, now, logger)
	if err := dataGateway.VerifyWorkbook(ctx); err != nil {
		logger.Warn("workbook verification failed", "error", err)
	}

	tracker := application.NewSubmissionTracker(dataGateway, cfg.PollInterval, now, logger)
	go tracker.Run(ctx)

	authHandler := httptransport.NewAuthHandler(identity, sessions, logger)
	attendanceHandler := httptransport.NewAttendanceHandler(dataGateway, logger)
	trackerHandler := httptransport.NewTrackerHandler(tracker, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       authHandler,
		Attendance: attendanceHandler,
		Tracker:    trackerHandler,
	})

	handler := rootHandler(router, sessions, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("rollcall API listening", "addr", server.Addr, "offline", cfg.Offline())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// rootHandler wraps the router with request logging and the session gate.
// Sign-in is the only entry point reachable without a session.
func rootHandler(router http.Handler, sessions httptransport.SessionValidator, logger *slog.Logger) http.Handler {
	protected := httptransport.RequireAccount(sessions, logger)(router)
	return httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" && r.Method == http.MethodPost {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))
}
