// Package storage implements the storage core plugin that appends captures to day files.
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/logstore"
	"github.com/rsclarke/hookcatch/internal/models"
	"github.com/rsclarke/hookcatch/internal/plugins"
)

// Plugin is the storage core plugin backed by a logstore.Store.
type Plugin struct {
	store  *logstore.Store
	logger *zap.Logger
}

// New creates a new storage Plugin writing to store.
func New(store *logstore.Store) *Plugin {
	return &Plugin{store: store}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "storage" }

// IsCore marks storage as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("storage")
	return nil
}

// Priority runs OnPreStore first so later hooks see the assigned date.
func (p *Plugin) Priority() int { return 0 }

// Config exposes the log directory.
func (p *Plugin) Config() map[string]any {
	return map[string]any{"log_dir": p.store.Dir()}
}

// OnPreStore assigns the day file from the record's capture time when the
// draft has none.
func (p *Plugin) OnPreStore(_ context.Context, e *events.Event) error {
	if e.Draft.Date != "" {
		return nil
	}
	e.Draft.Date = p.store.DateFor(time.UnixMilli(e.Draft.Record.CreatedAt))
	return nil
}

// Append persists rec to date's day file.
func (p *Plugin) Append(_ context.Context, date string, rec models.CaptureRecord) error {
	return p.store.Append(date, rec)
}
