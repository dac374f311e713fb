// Package acme obtains and renews the capture listener's certificate via
// ACME HTTP-01 or TLS-ALPN-01 challenges.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/logging"
)

// Options configures a Manager.
type Options struct {
	Domain  string
	Email   string
	Staging bool
	// HTTPPort and HTTPSPort are the ports the capture listeners bind.
	// Challenges are answered there when they differ from 80 and 443 and
	// traffic is forwarded.
	HTTPPort  int
	HTTPSPort int
}

// Manager holds the certmagic config for the capture domain. Certificates
// and ACME account data live in the shared sqlite database.
type Manager struct {
	opts   Options
	logger *zap.Logger
	config *certmagic.Config
	issuer *certmagic.ACMEIssuer
}

// SetLogger configures the global certmagic loggers.
// Call this before starting any HTTP servers that handle ACME challenges.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger
}

// NewManager prepares the issuer and storage. No network traffic happens
// until Manage.
func NewManager(d *sql.DB, opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Domain == "" {
		return nil, errors.New("acme: domain is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	SetLogger(logger)

	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(d, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return nil, fmt.Errorf("create certmagic storage: %w", err)
	}

	cfg := certmagic.NewDefault()
	cfg.Storage = storage
	cfg.Logger = logger

	caURL := certmagic.LetsEncryptProductionCA
	if opts.Staging {
		caURL = certmagic.LetsEncryptStagingCA
	}

	issuer := certmagic.NewACMEIssuer(cfg, certmagic.ACMEIssuer{
		CA:             caURL,
		Email:          opts.Email,
		Agreed:         true,
		AltHTTPPort:    opts.HTTPPort,
		AltTLSALPNPort: opts.HTTPSPort,
		Logger:         logger,
	})
	cfg.Issuers = []certmagic.Issuer{issuer}

	return &Manager{opts: opts, logger: logger, config: cfg, issuer: issuer}, nil
}

// HTTPChallengeHandler answers HTTP-01 challenges and passes every other
// request to next.
func (m *Manager) HTTPChallengeHandler(next http.Handler) http.Handler {
	return m.issuer.HTTPChallengeHandler(next)
}

// Manage obtains the certificate, blocking until it is available, and keeps
// it renewed in the background. The capture listeners must already be
// serving so the challenges can be answered.
func (m *Manager) Manage(ctx context.Context) error {
	m.logger.Info("obtaining certificate",
		logging.Domain(m.opts.Domain),
		zap.Bool("staging", m.opts.Staging))
	if err := m.config.ManageSync(ctx, []string{m.opts.Domain}); err != nil {
		return fmt.Errorf("manage certificate for %s: %w", m.opts.Domain, err)
	}
	m.logger.Info("certificate ready", logging.Domain(m.opts.Domain))
	return nil
}

// TLSConfig serves the managed certificate and TLS-ALPN challenges.
func (m *Manager) TLSConfig() *tls.Config {
	return m.config.TLSConfig()
}
