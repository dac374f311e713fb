// Package plugins composes the capture path out of small hooks. A plugin
// declares which stages it joins by implementing the matching hook
// interface; the Pipeline discovers them on Register.
package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/models"
)

type Plugin interface {
	ID() string
	Init(ctx InitContext) error
}

// InitContext carries shared resources into Plugin.Init.
type InitContext struct {
	Logger *zap.Logger
	Store  Store
}

// Store persists a capture record into the day file named by date.
type Store interface {
	Append(ctx context.Context, date string, rec models.CaptureRecord) error
}

// PreStoreHook sees the draft before persistence and may mark it Drop.
type PreStoreHook interface {
	OnPreStore(ctx context.Context, e *events.Event) error
}

// PostStoreHook runs after the persistence attempt, successful or not.
type PostStoreHook interface {
	OnPostStore(ctx context.Context, e *events.Event) error
}

// HTTPResponseHook fills the response plan. The first hook to set Handled
// ends the stage.
type HTTPResponseHook interface {
	OnHTTPResponse(ctx context.Context, e *events.HTTPEvent) error
}

// Prioritized orders hooks within a stage; lower runs first.
type Prioritized interface {
	Priority() int
}

type PluginType string

const (
	PluginTypeCore    PluginType = "core"
	PluginTypeFeature PluginType = "feature"
)

type CorePlugin interface {
	IsCore() bool
}

type ConfigurablePlugin interface {
	Config() map[string]any
}

// PluginInfo describes a registered plugin for the health endpoint.
type PluginInfo struct {
	ID       string         `json:"id"`
	Type     PluginType     `json:"type"`
	Enabled  bool           `json:"enabled"`
	Priority int            `json:"priority"`
	Config   map[string]any `json:"config,omitempty"`
}

type PluginRegistry interface {
	ListPlugins() []PluginInfo
}
