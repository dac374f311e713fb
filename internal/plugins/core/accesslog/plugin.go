// Package accesslog implements the core plugin that logs every received webhook.
package accesslog

import (
	"context"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/logging"
	"github.com/rsclarke/hookcatch/internal/plugins"
)

// Plugin writes one log line per capture after the store attempt.
type Plugin struct {
	logger *zap.Logger
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string { return "accesslog" }

func (p *Plugin) IsCore() bool { return true }

func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("accesslog")
	return nil
}

func (p *Plugin) OnPostStore(_ context.Context, e *events.Event) error {
	rec := e.Draft.Record
	fields := []zap.Field{
		logging.Method(rec.Method),
		logging.Path(rec.Path),
		logging.RemoteIP(rec.RemoteIP),
		logging.Date(e.Draft.Date),
		zap.Bool("stored", e.Stored),
	}
	if rec.ContentType != "" {
		fields = append(fields, logging.ContentType(rec.ContentType))
	}
	if e.Draft.Drop {
		fields = append(fields, zap.Bool("dropped", true))
	}
	p.logger.Info("webhook received", fields...)
	return nil
}
