package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/acme"
	"github.com/rsclarke/hookcatch/internal/auth"
	"github.com/rsclarke/hookcatch/internal/capture"
	"github.com/rsclarke/hookcatch/internal/config"
	"github.com/rsclarke/hookcatch/internal/db"
	"github.com/rsclarke/hookcatch/internal/filter"
	"github.com/rsclarke/hookcatch/internal/logging"
	"github.com/rsclarke/hookcatch/internal/logstore"
	"github.com/rsclarke/hookcatch/internal/plugins"
	"github.com/rsclarke/hookcatch/internal/plugins/core/accesslog"
	"github.com/rsclarke/hookcatch/internal/plugins/core/defaultresponse"
	"github.com/rsclarke/hookcatch/internal/plugins/core/storage"
	"github.com/rsclarke/hookcatch/internal/server"
)

var serverFlags struct {
	logDir      string
	dbPath      string
	prefix      string
	timezone    string
	httpPort    int
	httpsPort   int
	apiPort     int
	tlsCert     string
	tlsKey      string
	acme        bool
	acmeDomain  string
	acmeEmail   string
	acmeStaging bool
	uploadDir   string
	maxBody     int64
	storeLock   bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the capture and dashboard API listeners",
	Long: `Start the hookcatch capture listener, the optional HTTPS capture listener,
and the dashboard API.

Settings come from defaults, then --config, then HOOKCATCH_* environment
variables, then flags.

TLS Modes:
  --tls-cert + --tls-key  → Manual TLS mode (use provided certificates)
  --acme --acme-domain    → ACME mode (HTTP-01 / TLS-ALPN-01 via Let's Encrypt)
  (neither)               → HTTP only

Notes:
  On first start an API key is created and printed once; use it with the
  client commands. Certificates are stored in the --db database.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	d := config.Default()
	f := serverCmd.Flags()
	f.StringVar(&serverFlags.logDir, "log-dir", d.LogDir, "directory holding the per-day JSON files")
	f.StringVar(&serverFlags.dbPath, "db", d.DBPath, "database path (API keys, sessions, certificates)")
	f.StringVar(&serverFlags.prefix, "prefix", d.Prefix, "tag prefix for retained headers and cookies")
	f.StringVar(&serverFlags.timezone, "timezone", d.Timezone, "timezone that decides the day file of a capture")
	f.IntVar(&serverFlags.httpPort, "http-port", d.HTTPPort, "HTTP capture port")
	f.IntVar(&serverFlags.httpsPort, "https-port", d.HTTPSPort, "HTTPS capture port")
	f.IntVar(&serverFlags.apiPort, "api-port", d.APIPort, "dashboard API port")
	f.StringVar(&serverFlags.tlsCert, "tls-cert", "", "path to TLS certificate file (enables manual TLS mode)")
	f.StringVar(&serverFlags.tlsKey, "tls-key", "", "path to TLS key file (enables manual TLS mode)")
	f.BoolVar(&serverFlags.acme, "acme", false, "obtain a certificate via ACME")
	f.StringVar(&serverFlags.acmeDomain, "acme-domain", "", "domain to obtain the certificate for")
	f.StringVar(&serverFlags.acmeEmail, "acme-email", "", "email for Let's Encrypt notifications")
	f.BoolVar(&serverFlags.acmeStaging, "acme-staging", false, "use Let's Encrypt staging CA")
	f.StringVar(&serverFlags.uploadDir, "upload-dir", "", "keep uploaded files in this directory")
	f.Int64Var(&serverFlags.maxBody, "max-body-bytes", d.Capture.MaxBodyBytes, "truncate captured bodies beyond this size (0 = unlimited)")
	f.BoolVar(&serverFlags.storeLock, "store-lock", false, "serialise appends to the same day file")
}

// applyServerFlags overlays the flags the user set explicitly.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("log-dir", func() { cfg.LogDir = serverFlags.logDir })
	set("db", func() { cfg.DBPath = serverFlags.dbPath })
	set("prefix", func() { cfg.Prefix = serverFlags.prefix })
	set("timezone", func() { cfg.Timezone = serverFlags.timezone })
	set("http-port", func() { cfg.HTTPPort = serverFlags.httpPort })
	set("https-port", func() { cfg.HTTPSPort = serverFlags.httpsPort })
	set("api-port", func() { cfg.APIPort = serverFlags.apiPort })
	set("tls-cert", func() { cfg.TLS.CertFile = serverFlags.tlsCert })
	set("tls-key", func() { cfg.TLS.KeyFile = serverFlags.tlsKey })
	set("acme", func() { cfg.ACME.Enabled = serverFlags.acme })
	set("acme-domain", func() { cfg.ACME.Domain = serverFlags.acmeDomain })
	set("acme-email", func() { cfg.ACME.Email = serverFlags.acmeEmail })
	set("acme-staging", func() { cfg.ACME.Staging = serverFlags.acmeStaging })
	set("upload-dir", func() { cfg.Capture.UploadDir = serverFlags.uploadDir })
	set("max-body-bytes", func() { cfg.Capture.MaxBodyBytes = serverFlags.maxBody })
	set("store-lock", func() { cfg.Store.Lock = serverFlags.storeLock })
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := bootstrapAPIKey(cmd, database); err != nil {
		return err
	}

	storeOpts := []logstore.Option{
		logstore.WithLocation(loc),
		logstore.WithLogger(logger.Named("logstore")),
	}
	if cfg.Store.Lock {
		storeOpts = append(storeOpts, logstore.WithLocking())
	}
	store := logstore.New(cfg.LogDir, storeOpts...)

	pipeline := plugins.NewPipeline(logger.Named("pipeline"))
	storagePlugin := storage.New(store)
	pipeline.SetStore(storagePlugin)
	pipeline.Register(storagePlugin)
	pipeline.Register(accesslog.New())
	pipeline.Register(defaultresponse.New())
	if err := pipeline.Init(plugins.InitContext{Logger: logger}); err != nil {
		return fmt.Errorf("init plugins: %w", err)
	}

	captureSrv := &server.CaptureServer{
		Pipeline: pipeline,
		Normalizer: capture.Normalizer{
			Prefix:            filter.Prefix(cfg.Prefix),
			TrustProxyHeaders: cfg.Capture.TrustProxyHeaders,
		},
		Options: capture.Options{
			MaxBodyBytes: cfg.Capture.MaxBodyBytes,
			UploadDir:    cfg.Capture.UploadDir,
		},
		Logger: logger.Named("capture"),
	}

	var sessions *auth.SessionManager
	if cfg.DashboardEnabled() {
		sessions = auth.NewSessionManager(database, cfg.Dashboard.SessionTTL, cfg.Dashboard.SecureCookies)
		if n, err := sessions.Prune(); err != nil {
			logger.Warn("prune sessions failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned expired sessions", zap.Int64("count", n))
		}
	} else {
		logger.Info("dashboard login disabled", zap.String("reason", "no dashboard username/password_hash configured"))
	}

	apiSrv := &server.APIServer{
		DB:       database,
		Store:    store,
		Sessions: sessions,
		Credentials: auth.Credentials{
			Username:     cfg.Dashboard.Username,
			PasswordHash: cfg.Dashboard.PasswordHash,
		},
		Plugins: pipeline,
		Logger:  logger.Named("api"),
	}

	var manager *acme.Manager
	var captureHandler http.Handler = captureSrv
	if cfg.ACME.Enabled && !cfg.ManualTLS() {
		manager, err = acme.NewManager(database, acme.Options{
			Domain:    cfg.ACME.Domain,
			Email:     cfg.ACME.Email,
			Staging:   cfg.ACME.Staging,
			HTTPPort:  cfg.HTTPPort,
			HTTPSPort: cfg.HTTPSPort,
		}, logger.Named("certmagic"))
		if err != nil {
			return err
		}
		captureHandler = manager.HTTPChallengeHandler(captureSrv)
	}

	var group server.Group
	group.Add(server.NewManagedServer("http", server.DefaultServerConfig(
		fmt.Sprintf(":%d", cfg.HTTPPort), captureHandler, logger.Named("http"))))
	group.Add(server.NewManagedServer("api", server.DefaultServerConfig(
		fmt.Sprintf(":%d", cfg.APIPort), apiSrv.Handler(), logger.Named("api"))))

	tlsConfig, tlsMode, err := captureTLS(cfg, manager)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		httpsCfg := server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.HTTPSPort), captureSrv, logger.Named("https"))
		httpsCfg.TLSConfig = tlsConfig
		group.Add(server.NewManagedServer("https", httpsCfg))
		logger.Info("https enabled", logging.TLSMode(tlsMode), logging.Port(cfg.HTTPSPort))
	} else {
		logger.Info("https disabled", zap.String("reason", "no TLS certificate or ACME configured"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		group.Shutdown(sctx)
	}

	if err := group.Start(ctx); err != nil {
		return err
	}

	if manager != nil {
		if err := manager.Manage(ctx); err != nil {
			shutdown()
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
	}

	logger.Info("hookcatch ready",
		logging.Port(cfg.HTTPPort),
		zap.Int("api_port", cfg.APIPort),
		zap.String("log_dir", cfg.LogDir))

	serveErr := group.Wait(ctx)

	logger.Info("shutting down")
	shutdown()
	return serveErr
}

// bootstrapAPIKey creates and prints the first API key when none exist.
func bootstrapAPIKey(cmd *cobra.Command, database *sql.DB) error {
	count, err := db.CountAPIKeys(database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count > 0 {
		return nil
	}
	label := "bootstrap"
	displayKey, err := auth.IssueAPIKey(database, &label)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=============================================================")
	fmt.Fprintln(out, "API KEY CREATED (save this, it will not be shown again):")
	fmt.Fprintln(out, displayKey)
	fmt.Fprintln(out, "=============================================================")
	return nil
}

func captureTLS(cfg *config.Config, manager *acme.Manager) (*tls.Config, string, error) {
	switch {
	case cfg.ManualTLS():
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, "", fmt.Errorf("load TLS certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, "manual", nil
	case manager != nil:
		return manager.TLSConfig(), "acme", nil
	default:
		return nil, "", nil
	}
}
