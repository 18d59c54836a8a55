package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWhitelist maps node names to the tools they may call.
func DefaultWhitelist() map[string][]string {
	return map[string][]string{
		"triage":     {DatabaseQuery},
		"billing":    {DatabaseQuery, PaymentGateway, EmailSender},
		"technical":  {DatabaseQuery, KnowledgeBase, EmailSender},
		"account":    {DatabaseQuery, EmailSender},
		"escalation": {DatabaseQuery, PaymentGateway, EmailSender, KnowledgeBase},
	}
}

// Observer receives one callback per tool call.
type Observer interface {
	ObserveToolCall(tool string, succeeded bool, d time.Duration)
}

// Registry holds tools and per-node whitelists.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	whitelist map[string][]string
	logger    *zap.Logger
	observer  Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers a tool call observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// WithWhitelist replaces the default node whitelists.
func WithWhitelist(w map[string][]string) RegistryOption {
	return func(r *Registry) { r.whitelist = w }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:     make(map[string]Tool),
		whitelist: DefaultWhitelist(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allowed returns the whitelist for node.
func (r *Registry) Allowed(node string) []string {
	return append([]string(nil), r.whitelist[node]...)
}

// ForNode returns a view of the registry restricted to node's whitelist.
func (r *Registry) ForNode(node string) *Toolbox {
	allowed := make(map[string]bool)
	for _, name := range r.whitelist[node] {
		allowed[name] = true
	}
	return &Toolbox{registry: r, node: node, allowed: allowed}
}

// Toolbox is a whitelist-restricted view used by one node.
type Toolbox struct {
	registry *Registry
	node     string
	allowed  map[string]bool
}

// Has reports whether the tool is both allowed and registered.
func (b *Toolbox) Has(name string) bool {
	if b == nil || !b.allowed[name] {
		return false
	}
	_, ok := b.registry.Get(name)
	return ok
}

// Execute calls the named tool. Disallowed or missing tools and panics
// become failed outcomes.
func (b *Toolbox) Execute(ctx context.Context, name string, in Input) (out Outcome) {
	if b == nil {
		return fail("no toolbox")
	}
	if !b.allowed[name] {
		return fail("tool %s is not allowed for %s", name, b.node)
	}
	t, ok := b.registry.Get(name)
	if !ok {
		return fail("tool %s is not registered", name)
	}
	if err := ctx.Err(); err != nil {
		return fail("%s: %v", name, err)
	}

	summary := ""
	if in != nil {
		summary = in.Summary()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out = fail("%s panicked: %v", name, p)
		}
		d := time.Since(start)
		if b.registry.observer != nil {
			b.registry.observer.ObserveToolCall(name, out.Succeeded, d)
		}
		fields := []zap.Field{
			zap.String("node", b.node),
			zap.String("tool", name),
			zap.String("input", summary),
			zap.Bool("succeeded", out.Succeeded),
			zap.Duration("duration", d),
		}
		if out.Succeeded {
			b.registry.logger.Debug("tool_call", fields...)
		} else {
			b.registry.logger.Warn("tool_call_failed", append(fields, zap.String("error", out.Error))...)
		}
	}()

	return t.Execute(ctx, in)
}

// String implements fmt.Stringer for debugging.
func (b *Toolbox) String() string {
	return fmt.Sprintf("toolbox(%s)", b.node)
}
