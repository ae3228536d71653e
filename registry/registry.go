// Package registry provides a process-wide registry of flows keyed by
// (project, name, version). Registered flows can be serialized, along
// with their computed task ids, into portable snapshots and restored in
// another process.
package registry

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/petal-labs/stemflow"
	"github.com/petal-labs/stemflow/config"
)

// Registry errors
var (
	// ErrNotFound reports a lookup for a key with no registered flow.
	ErrNotFound = errors.New("flow not found")

	// ErrCorruptRegistry reports a snapshot that cannot be decoded:
	// malformed bytes, an unknown format, or a failed decryption.
	ErrCorruptRegistry = errors.New("corrupt registry snapshot")
)

// Key identifies a registered flow.
type Key struct {
	Project string
	Name    string
	Version string
}

// KeyOf returns the registry key for a flow.
func KeyOf(f *stemflow.Flow) Key {
	return Key{Project: f.Project, Name: f.Name, Version: f.Version}
}

// Registry is a mutex-guarded map of flows. All operations hold the
// mutex for their full duration and never suspend while holding it;
// iteration visible to callers works on snapshots taken under the lock.
type Registry struct {
	mu        sync.Mutex
	flows     map[Key]*stemflow.Flow
	order     []Key
	cfg       config.RegistryConfig
	warn      stemflow.WarningHandler
	overwrite bool
}

// Option configures a registry at construction time.
type Option func(*Registry)

// WithConfig applies registry configuration.
func WithConfig(cfg config.RegistryConfig) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithWarningHandler installs the observer for non-fatal conditions.
func WithWarningHandler(h stemflow.WarningHandler) Option {
	return func(r *Registry) { r.warn = h }
}

// WithOverwrite makes duplicate registration replace the existing flow
// instead of keeping the first.
func WithOverwrite() Option {
	return func(r *Registry) { r.overwrite = true }
}

// New creates a local registry instance. Embedded users and tests get
// their own registries this way and never touch global state.
func New(opts ...Option) *Registry {
	r := &Registry{
		flows: make(map[Key]*stemflow.Flow),
		cfg:   config.Default().Registry,
		warn:  stemflow.LogWarningHandler(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.warn == nil {
		r.warn = func(stemflow.Warning) {}
	}
	return r
}

var (
	globalMu sync.Mutex
	global   *Registry
)

// Global returns the process-wide registry, creating an unconfigured
// one on first use. Init replaces it with a configured instance.
func Global() *Registry {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New()
	}
	return global
}

// ResetGlobal discards the process-wide registry. The next Global or
// Init call starts from scratch. This is the teardown half of the
// Init/ResetGlobal pair.
func ResetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = nil
}

// Init installs a configured process-wide registry and, when the
// configuration names a startup snapshot path, loads it. Startup load
// failures are warnings, never fatal.
func Init(cfg config.RegistryConfig, opts ...Option) *Registry {
	opts = append([]Option{WithConfig(cfg)}, opts...)
	r := New(opts...)
	globalMu.Lock()
	global = r
	globalMu.Unlock()
	r.LoadOnStartup()
	return r
}

// LoadOnStartup loads the snapshot named by the registry's
// load_on_startup configuration, if any. Errors are reported through
// the warning observer.
func (r *Registry) LoadOnStartup() {
	path := r.cfg.LoadOnStartup
	if path == "" {
		return
	}
	// #nosec G304 -- path comes from explicit configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		r.warn(stemflow.Warning{
			Kind:   stemflow.WarnStartupLoad,
			Detail: fmt.Sprintf("startup registry load from %q failed: %v", path, err),
		})
		return
	}
	if err := r.LoadSerialized(data); err != nil {
		r.warn(stemflow.Warning{
			Kind:   stemflow.WarnStartupLoad,
			Detail: fmt.Sprintf("startup registry load from %q failed: %v", path, err),
		})
	}
}

// Register inserts the flow under its (project, name, version) key.
// Registering an existing key emits a duplicate-registration warning
// (when configured) and keeps the first flow unless the registry was
// built with WithOverwrite.
func (r *Registry) Register(f *stemflow.Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(f)
}

// register inserts without locking; callers hold r.mu.
func (r *Registry) register(f *stemflow.Flow) {
	key := KeyOf(f)
	if _, exists := r.flows[key]; exists {
		if r.cfg.WarnOnDuplicateRegistration {
			r.warn(stemflow.Warning{
				Kind:   stemflow.WarnDuplicateRegistration,
				Detail: fmt.Sprintf("flow %q/%q version %q is already registered", key.Project, key.Name, key.Version),
			})
		}
		if !r.overwrite {
			return
		}
		r.flows[key] = f
		return
	}
	r.flows[key] = f
	r.order = append(r.order, key)
}

// LoadFlow returns the flow registered under the key, or ErrNotFound.
func (r *Registry) LoadFlow(project, name, version string) (*stemflow.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[Key{Project: project, Name: name, Version: version}]
	if !ok {
		return nil, fmt.Errorf("%w: %q/%q version %q", ErrNotFound, project, name, version)
	}
	return f, nil
}

// Flows returns the registered flows in registration order. The slice
// is a snapshot; later registrations do not affect it.
func (r *Registry) Flows() []*stemflow.Flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*stemflow.Flow, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.flows[key])
	}
	return out
}

// Len returns the number of registered flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Clear removes all registered flows.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = make(map[Key]*stemflow.Flow)
	r.order = nil
}

// NewFlow constructs a flow and immediately registers it with the
// global registry, mirroring declarative flow construction with
// registration enabled.
func NewFlow(name string, opts ...stemflow.FlowOption) *stemflow.Flow {
	f := stemflow.NewFlow(name, opts...)
	Global().Register(f)
	return f
}
