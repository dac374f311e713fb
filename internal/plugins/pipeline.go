package plugins

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/logging"
)

// DefaultPriority applies to plugins that do not implement Prioritized.
const DefaultPriority = 100

// Pipeline runs a capture through the registered hooks:
// PreStore, then the Store, then PostStore, then HTTPResponse.
type Pipeline struct {
	logger  *zap.Logger
	store   Store
	plugins []Plugin

	preStore     []PreStoreHook
	postStore    []PostStoreHook
	httpResponse []HTTPResponseHook
}

func NewPipeline(logger *zap.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// SetStore sets the persistence backend. A pipeline without one still runs
// every hook and reports nothing stored.
func (p *Pipeline) SetStore(store Store) {
	p.store = store
}

// Register adds plugin to the hook lists for each capability it implements.
// Within a list hooks run by ascending priority, ties in registration order.
func (p *Pipeline) Register(plugin Plugin) {
	p.plugins = append(p.plugins, plugin)
	p.preStore = addHook(p.preStore, plugin)
	p.postStore = addHook(p.postStore, plugin)
	p.httpResponse = addHook(p.httpResponse, plugin)
}

func addHook[H any](hooks []H, plugin Plugin) []H {
	h, ok := plugin.(H)
	if !ok {
		return hooks
	}
	hooks = append(hooks, h)
	slices.SortStableFunc(hooks, func(a, b H) int {
		return cmp.Compare(priorityOf(a), priorityOf(b))
	})
	return hooks
}

func priorityOf(hook any) int {
	if p, ok := hook.(Prioritized); ok {
		return p.Priority()
	}
	return DefaultPriority
}

// Init initializes every registered plugin in registration order, filling
// unset InitContext fields from the pipeline.
func (p *Pipeline) Init(ctx InitContext) error {
	if ctx.Logger == nil {
		ctx.Logger = p.logger
	}
	if ctx.Store == nil {
		ctx.Store = p.store
	}
	for _, plugin := range p.plugins {
		if err := plugin.Init(ctx); err != nil {
			return fmt.Errorf("init plugin %s: %w", plugin.ID(), err)
		}
	}
	return nil
}

func (p *Pipeline) ListPlugins() []PluginInfo {
	infos := make([]PluginInfo, 0, len(p.plugins))
	for _, plugin := range p.plugins {
		info := PluginInfo{
			ID:       plugin.ID(),
			Type:     PluginTypeFeature,
			Enabled:  true,
			Priority: priorityOf(plugin),
		}
		if cp, ok := plugin.(CorePlugin); ok && cp.IsCore() {
			info.Type = PluginTypeCore
		}
		if cp, ok := plugin.(ConfigurablePlugin); ok {
			info.Config = cp.Config()
		}
		infos = append(infos, info)
	}
	return infos
}

// ProcessHTTP runs one capture through the pipeline. A hook error or panic is
// logged and does not stop later hooks. A storage failure is recorded on the
// event and returned once every hook has run, so the caller always has a
// response plan.
func (p *Pipeline) ProcessHTTP(ctx context.Context, e *events.HTTPEvent) error {
	for _, hook := range p.preStore {
		p.call("prestore", hook, func() error { return hook.OnPreStore(ctx, &e.Event) })
	}

	if !e.Draft.Drop && p.store != nil {
		if err := p.store.Append(ctx, e.Draft.Date, e.Draft.Record); err != nil {
			e.StoreErr = err
		} else {
			e.Stored = true
		}
	}

	for _, hook := range p.postStore {
		p.call("poststore", hook, func() error { return hook.OnPostStore(ctx, &e.Event) })
	}

	for _, hook := range p.httpResponse {
		p.call("httpresponse", hook, func() error { return hook.OnHTTPResponse(ctx, e) })
		if e.Resp != nil && e.Resp.Handled {
			break
		}
	}

	return e.StoreErr
}

func (p *Pipeline) call(stage string, hook any, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("hook panicked",
				zap.String("stage", stage),
				logging.Plugin(pluginID(hook)),
				zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		p.logger.Warn("hook error",
			zap.String("stage", stage),
			logging.Plugin(pluginID(hook)),
			zap.Error(err))
	}
}

func pluginID(hook any) string {
	if p, ok := hook.(Plugin); ok {
		return p.ID()
	}
	return "unknown"
}
