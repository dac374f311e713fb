// Package defaultresponse answers every capture with 200 OK unless an
// earlier response hook already did.
package defaultresponse

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/plugins"
)

const (
	Body        = "OK"
	ContentType = "text/plain; charset=utf-8"
)

type Plugin struct {
	logger *zap.Logger
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ID() string { return "defaultresponse" }

func (p *Plugin) IsCore() bool { return true }

func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("defaultresponse")
	return nil
}

// Priority places the fallback after every other response hook.
func (p *Plugin) Priority() int { return 999 }

func (p *Plugin) Config() map[string]any {
	return map[string]any{"status": http.StatusOK, "body": Body}
}

func (p *Plugin) OnHTTPResponse(_ context.Context, e *events.HTTPEvent) error {
	if e.Resp == nil || e.Resp.Handled {
		return nil
	}
	e.Resp.Status = http.StatusOK
	e.Resp.Body = []byte(Body)
	if e.Resp.Headers == nil {
		e.Resp.Headers = make(map[string]string, 1)
	}
	e.Resp.Headers["Content-Type"] = ContentType
	e.Resp.Handled = true
	if p.logger != nil {
		p.logger.Debug("default response", zap.Bool("stored", e.Stored))
	}
	return nil
}
