package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jikku/jomi-links/internal/certstore"
	"github.com/jikku/jomi-links/internal/config"
	"github.com/jikku/jomi-links/internal/handlers"
	"github.com/jikku/jomi-links/internal/logging"
	"github.com/jikku/jomi-links/internal/middleware"
	"github.com/jikku/jomi-links/internal/security"
)

const Version = "v1.0.0"

const shutdownTimeout = 30 * time.Second

func main() {
	flags := config.ParseFlags()

	if flags.Version {
		printVersion(os.Stdout)
		return
	}
	if flags.Help {
		printHelp(os.Stdout)
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	printBanner(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

// buildHandler assembles the routes and middleware for cfg
func buildHandler(cfg *config.Config, logger *zap.Logger, checks ...handlers.HealthChecker) (http.Handler, error) {
	article, err := handlers.NewArticleHandler(handlers.ArticleConfigFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create article handler: %w", err)
	}

	mux := handlers.NewMux(article, handlers.ConfigHandler(cfg, article), checks...)

	// order: tracing -> access log -> security headers -> recovery -> routes
	return middleware.Chain(mux,
		middleware.RequestTracing,
		middleware.AccessLog(logger),
		middleware.SecurityHeaders(middleware.SecurityOptions{
			AppScheme: cfg.Links.AppScheme,
			HSTS:      cfg.IsProduction() && cfg.TLSEnabled(),
		}),
		middleware.Recovery(logger),
	), nil
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// run serves until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var (
		store  *certstore.Store
		checks []handlers.HealthChecker
	)
	if cfg.TLSEnabled() {
		var err error
		store, err = certstore.Open(cfg.TLS.CertDBPath)
		if err != nil {
			return fmt.Errorf("failed to open certificate store: %w", err)
		}
		defer store.Close()
		security.SecureCertDatabase(cfg.TLS.CertDBPath, logger)
		checks = append(checks, store)
	}

	handler, err := buildHandler(cfg, logger, checks...)
	if err != nil {
		return err
	}

	srv := newServer(":"+cfg.Server.Port, handler)
	servers := []*http.Server{srv}
	errCh := make(chan error, 2)

	if store != nil {
		manager := certstore.NewManager(store, certstore.Options{
			Domain:    cfg.TLS.Domain,
			Email:     cfg.TLS.Email,
			Staging:   !cfg.IsProduction(),
			HTTPSPort: cfg.Server.Port,
		}, logger.Named("certmagic"))
		defer manager.Stop()

		// the challenge listener must be up before the certificate is requested
		httpSrv := newServer(":"+cfg.TLS.HTTPPort, manager.HTTPHandler())
		servers = append(servers, httpSrv)
		go serve(httpSrv, logger, errCh, func() error { return httpSrv.ListenAndServe() })

		tlsConfig, err := manager.Manage(ctx)
		if err != nil {
			shutdown(servers, logger)
			return ignoreCancel(ctx, err)
		}
		srv.TLSConfig = tlsConfig

		go serve(srv, logger, errCh, func() error { return srv.ListenAndServeTLS("", "") })
	} else {
		go serve(srv, logger, errCh, func() error { return srv.ListenAndServe() })
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errCh:
		shutdown(servers, logger)
		return err
	}

	return shutdown(servers, logger)
}

// ignoreCancel treats an error caused by ctx being cancelled as a clean stop
func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serve(srv *http.Server, logger *zap.Logger, errCh chan<- error, listen func() error) {
	logger.Info("server starting", zap.String("addr", srv.Addr), zap.Bool("tls", srv.TLSConfig != nil))
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
}

func shutdown(servers []*http.Server, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server forced to shutdown", zap.String("addr", srv.Addr), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "            Jomi Links %s - Starting Up\n", Version)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Environment:  %s\n", cfg.Server.Env)
	fmt.Fprintf(w, "  Port:         %s\n", cfg.Server.Port)
	fmt.Fprintf(w, "  App scheme:   %s://\n", cfg.Links.AppScheme)
	fmt.Fprintf(w, "  Website:      %s\n", cfg.Links.WebBaseURL)
	fmt.Fprintf(w, "  Errors:       %s\n", cfg.Links.ErrorFormat)
	if cfg.TLSEnabled() {
		fmt.Fprintf(w, "  TLS:          ✓ %s (challenges on :%s)\n", cfg.TLS.Domain, cfg.TLS.HTTPPort)
	} else {
		fmt.Fprintln(w, "  TLS:          ✗ Disabled")
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w)
}

// printVersion displays version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Jomi Links %s\n", Version)
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp displays usage information
func printHelp(w io.Writer) {
	fmt.Fprintf(w, "Jomi Links %s - deep-link redirect service\n\n", Version)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  jomi-links [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FLAGS:")
	fmt.Fprintln(w, "  --port <port>        Server port (overrides PORT, default 4698)")
	fmt.Fprintln(w, "  --env <env>          development or production (overrides ENV)")
	fmt.Fprintln(w, "  --env-file <path>    Optional dotenv file (default .env)")
	fmt.Fprintln(w, "  --version            Show version and exit")
	fmt.Fprintln(w, "  --help               Show this help and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ROUTES:")
	fmt.Fprintln(w, "  GET /article/{articleId}?pubId=&slug=   Open an article in the app or on the web")
	fmt.Fprintln(w, "  GET /api/article/{articleId}            Same as above (legacy path)")
	fmt.Fprintln(w, "  GET /health                             Liveness check")
	fmt.Fprintln(w, "  GET /api/config                         Effective settings (development only)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ENVIRONMENT:")
	fmt.Fprintln(w, "  APP_SCHEME, WEB_BASE_URL, ERROR_FORMAT, LEGACY_PUB_ID_KEYS, SCANNABLE_CODE,")
	fmt.Fprintln(w, "  HANDOFF_*_DELAY, LOG_LEVEL, TLS_DOMAIN, TLS_EMAIL, TLS_HTTP_PORT, CERT_DB_PATH")
}
