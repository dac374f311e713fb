package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rsclarke/hookcatch/internal/logging"
)

// ServerConfig describes one listener.
type ServerConfig struct {
	Addr              string
	Handler           http.Handler
	TLSConfig         *tls.Config
	Logger            *zap.Logger
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

func DefaultServerConfig(addr string, handler http.Handler, logger *zap.Logger) ServerConfig {
	return ServerConfig{
		Addr:              addr,
		Handler:           handler,
		Logger:            logger,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// ManagedServer is an http.Server whose bind happens synchronously in Start
// so a busy port is reported before the process claims to be ready.
type ManagedServer struct {
	name   string
	srv    *http.Server
	logger *zap.Logger

	ln   net.Listener
	done chan error
}

func NewManagedServer(name string, cfg ServerConfig) *ManagedServer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	errLog, _ := zap.NewStdLogAt(logger, zapcore.WarnLevel)

	return &ManagedServer{
		name:   name,
		logger: logger,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           cfg.Handler,
			TLSConfig:         cfg.TLSConfig,
			ErrorLog:          errLog,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		done: make(chan error, 1),
	}
}

func (m *ManagedServer) Name() string { return m.name }

// Start binds the listener and serves in the background. Serve errors after
// a successful bind surface through Err.
func (m *ManagedServer) Start() error {
	ln, err := net.Listen("tcp", m.srv.Addr)
	if err != nil {
		return fmt.Errorf("%s listener: %w", m.name, err)
	}
	m.ln = ln

	serve := m.srv.Serve
	mode := "plain"
	if m.srv.TLSConfig != nil {
		serve = func(l net.Listener) error { return m.srv.ServeTLS(l, "", "") }
		mode = "tls"
	}
	m.logger.Info("listening",
		zap.String("server", m.name),
		logging.Addr(ln.Addr().String()),
		logging.TLSMode(mode))

	go func() {
		defer close(m.done)
		if err := serve(ln); !errors.Is(err, http.ErrServerClosed) {
			m.done <- fmt.Errorf("%s: %w", m.name, err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (m *ManagedServer) Addr() string {
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.srv.Addr
}

// Err yields at most one serve error and is closed when serving stops.
func (m *ManagedServer) Err() <-chan error {
	return m.done
}

// Shutdown drains connections. It is a no-op when Start never bound.
func (m *ManagedServer) Shutdown(ctx context.Context) {
	if m.ln == nil {
		return
	}
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("shutdown error", zap.String("server", m.name), zap.Error(err))
	}
}

// Group starts and stops a set of servers together.
type Group struct {
	servers []*ManagedServer
	started []*ManagedServer
}

func (g *Group) Add(s *ManagedServer) {
	g.servers = append(g.servers, s)
}

// Start binds every server in order. On the first failure the servers
// already started are shut down and the error is returned.
func (g *Group) Start(ctx context.Context) error {
	for _, s := range g.servers {
		if err := s.Start(); err != nil {
			g.Shutdown(ctx)
			return err
		}
		g.started = append(g.started, s)
	}
	return nil
}

// Wait blocks until ctx is done (nil) or any server fails (its error).
func (g *Group) Wait(ctx context.Context) error {
	errs := make(chan error, len(g.started))
	for _, s := range g.started {
		go func() {
			if err, ok := <-s.Err(); ok {
				errs <- err
			}
		}()
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

func (g *Group) Shutdown(ctx context.Context) {
	for _, s := range g.started {
		s.Shutdown(ctx)
	}
}
