package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq" // Postgres Driver

	"github.com/Mindburn-Labs/covenant/pkg/anchor"
	"github.com/Mindburn-Labs/covenant/pkg/api"
	"github.com/Mindburn-Labs/covenant/pkg/auth"
	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/finance"
	"github.com/Mindburn-Labs/covenant/pkg/notifier"
	"github.com/Mindburn-Labs/covenant/pkg/observability"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
	"github.com/Mindburn-Labs/covenant/pkg/protocol"
	"github.com/Mindburn-Labs/covenant/pkg/store"
)

func newServeCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if profilePath != "" {
				cfg.ProfilePath = profilePath
			}
			profile, err := loadProfile(cfg.ProfilePath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return startServer(ctx, cfg, profile, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "deployment profile (YAML); overrides PROFILE_PATH")
	return cmd
}

func loadProfile(path string) (*config.Profile, error) {
	if path == "" {
		return config.DefaultProfile(), nil
	}
	return config.LoadProfile(path)
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// closers runs cleanup in reverse registration order.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildDeps connects the infrastructure named by cfg and profile. Unset
// endpoints fall back to in-memory collaborators.
func buildDeps(ctx context.Context, cfg *config.Config, profile *config.Profile, logger *slog.Logger) (protocol.Deps, closers, error) {
	var (
		deps = protocol.Deps{Logger: logger}
		done closers
	)
	fail := func(err error) (protocol.Deps, closers, error) {
		_ = done.Close()
		return protocol.Deps{}, nil, err
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to DB: %w", err))
		}
		done = append(done, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fail(fmt.Errorf("DB ping failed: %w", err))
		}
		book := finance.NewPostgresBook(db, profile.Currency)
		if err := book.Init(ctx); err != nil {
			return fail(fmt.Errorf("failed to init balance book: %w", err))
		}
		deps.Book = book
		logger.Info("balance book: postgres")
	}

	if cfg.JournalDSN != "" {
		j, err := openJournal(ctx, cfg.JournalDSN)
		if err != nil {
			return fail(err)
		}
		done = append(done, j.Close)
		history, err := store.Replay(ctx, j)
		if err != nil {
			return fail(err)
		}
		deps.Persister = j
		deps.History = history
		logger.Info("journal: persistent", "entries", len(history))
	}

	switch profile.Invariants.Source {
	case "redis":
		if cfg.RedisAddr == "" {
			return fail(errors.New("invariants source is redis but REDIS_ADDR is not set"))
		}
		deps.Health = policy.NewRedisSource(cfg.RedisAddr, "", 0, profile.Invariants.RedisKey)
	default:
		deps.Health = policy.NewStaticSource(policy.Health{
			Risk:       profile.Invariants.Risk,
			Compliance: profile.Invariants.Compliance,
		})
	}

	docs, err := anchor.NewStore(ctx, profile.Anchor)
	if err != nil {
		return fail(fmt.Errorf("document store: %w", err))
	}
	deps.Store = docs

	timeout := profile.Notifier.Timeout
	if timeout <= 0 {
		timeout = notifier.DefaultConfig.Timeout
	}
	deps.Resolver = notifier.NewHTTPResolver(&http.Client{Timeout: timeout})
	return deps, done, nil
}

// journalBackend is a journal store that owns a connection.
type journalBackend interface {
	store.JournalStore
	Close() error
}

// openJournal picks Postgres for postgres:// DSNs and SQLite otherwise.
func openJournal(ctx context.Context, dsn string) (journalBackend, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return store.OpenPostgresJournal(ctx, dsn)
	}
	return store.OpenSQLiteJournal(dsn)
}

func runServer(ctx context.Context, cfg *config.Config, profile *config.Profile, stdout io.Writer) error {
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	deps, done, err := buildDeps(ctx, cfg, profile, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := done.Close(); err != nil {
			logger.Error("cleanup failed", "error", err)
		}
	}()

	var telemetry *observability.Provider
	if cfg.OTLPEndpoint != "" {
		oc := observability.DefaultConfig()
		oc.OTLPEndpoint = cfg.OTLPEndpoint
		oc.Insecure = true
		telemetry, err = observability.New(ctx, oc)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
		deps.Metrics = telemetry
		logger.Info("telemetry: exporting", "endpoint", cfg.OTLPEndpoint)
	}

	p, err := protocol.New(ctx, protocol.ConfigFromProfile(profile), deps)
	if err != nil {
		return err
	}

	validator := auth.NewHMACValidator(cfg.JWTSecret)
	if validator == nil {
		logger.Warn("JWT_SECRET not set: every authenticated route will answer 401")
	}
	limiter := api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	go limiter.Run(ctx)

	srv, err := api.NewServer(p, api.Options{
		Validator:   validator,
		RateLimiter: limiter,
		Telemetry:   telemetry,
		Logger:      logger.With("component", "api"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("covenant listening", "addr", httpServer.Addr, "profile", profile.Name)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	if ferr := p.Journal().Flush(shutdownCtx); ferr != nil {
		logger.Error("journal backlog not persisted", "pending", p.Journal().Pending(), "error", ferr)
	}
	return err
}
