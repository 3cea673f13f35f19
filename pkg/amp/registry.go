package amp

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"ampctl/pkg/port"

	log "github.com/sirupsen/logrus"
)

// Opener opens the transport of an instance.
type Opener func(cfg port.Config) (port.Transport, error)

// Module is a backend that can be loaded into a registry by name.
type Module struct {
	Name     string
	Family   int // Model.Family of the models it registers
	Register func(r *Registry) error
}

// LoadReport summarises LoadAllBackends.
type LoadReport struct {
	Loaded []string
	Failed map[string]error
}

// Registry maps model ids to their Caps. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	caps    map[Model]*Caps
	order   []Model
	live    map[Model]int
	modules map[string]Module
	loaded  map[string]bool

	// loadMu serialises module loading; Register takes mu itself.
	loadMu sync.Mutex

	open   Opener
	logger log.FieldLogger
}

type RegistryOption func(*Registry)

// WithOpener replaces port.Open as the transport factory of instances.
func WithOpener(open Opener) RegistryOption {
	return func(r *Registry) {
		r.open = open
	}
}

func NewRegistry(logger log.FieldLogger, opts ...RegistryOption) *Registry {
	r := Registry{
		caps:    make(map[Model]*Caps),
		live:    make(map[Model]int),
		modules: make(map[string]Module),
		loaded:  make(map[string]bool),
		open:    port.Open,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

// Register adds caps under its model id.
func (r *Registry) Register(caps *Caps) error {
	if caps == nil {
		return fmt.Errorf("nil caps: %w", ErrInvalid)
	}
	if err := caps.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[caps.Model]; exists {
		return fmt.Errorf("model %d: %w", caps.Model, ErrConflict)
	}
	r.caps[caps.Model] = caps
	r.order = append(r.order, caps.Model)

	r.logger.Debugf("Registered model %d (%s %s)", caps.Model, caps.MfgName, caps.ModelName)
	return nil
}

// Unregister removes a model. It fails with ErrBusy while instances of
// the model exist.
func (r *Registry) Unregister(model Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[model]; !exists {
		return fmt.Errorf("model %d: %w", model, ErrNotFound)
	}
	if n := r.live[model]; n > 0 {
		return fmt.Errorf("model %d has %d live instances: %w", model, n, ErrBusy)
	}

	delete(r.caps, model)
	for i, m := range r.order {
		if m == model {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Debugf("Unregistered model %d", model)
	return nil
}

// Lookup returns the registered caps of model.
func (r *Registry) Lookup(model Model) (*Caps, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps, ok := r.caps[model]
	if !ok {
		return nil, fmt.Errorf("model %d: %w", model, ErrNotFound)
	}
	return caps, nil
}

// Enumerate yields the registered caps accepted by match, in registration
// order. A nil match accepts everything. The sequence takes a snapshot
// each time it is ranged over, so it can be restarted and the loop body
// may call back into the registry.
func (r *Registry) Enumerate(match func(*Caps) bool) iter.Seq[*Caps] {
	return func(yield func(*Caps) bool) {
		for _, caps := range r.snapshot() {
			if match != nil && !match(caps) {
				continue
			}
			if !yield(caps) {
				return
			}
		}
	}
}

func (r *Registry) snapshot() []*Caps {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Caps, 0, len(r.order))
	for _, m := range r.order {
		list = append(list, r.caps[m])
	}
	return list
}

// AddModule makes a backend module known to LoadBackend. Adding a module
// twice under the same name fails with ErrConflict.
func (r *Registry) AddModule(mod Module) error {
	if mod.Name == "" || mod.Register == nil {
		return fmt.Errorf("module %q: %w", mod.Name, ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name]; exists {
		return fmt.Errorf("module %q: %w", mod.Name, ErrConflict)
	}
	r.modules[mod.Name] = mod
	return nil
}

// Modules returns the names of the known backend modules, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Loaded reports whether the named module has been loaded.
func (r *Registry) Loaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded[name]
}

// LoadBackend runs the registration entry point of the named module.
// Loading an already loaded module succeeds without doing anything. When
// the entry point fails, the models it registered are removed again.
func (r *Registry) LoadBackend(name string) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.RLock()
	mod, known := r.modules[name]
	done := r.loaded[name]
	r.mu.RUnlock()

	if !known {
		return fmt.Errorf("backend %q: %w", name, ErrNotFound)
	}
	if done {
		return nil
	}

	before := make(map[Model]bool)
	for _, caps := range r.snapshot() {
		before[caps.Model] = true
	}

	if err := mod.Register(r); err != nil {
		// Drop what the failed attempt registered so a retry starts clean.
		for _, caps := range r.snapshot() {
			if before[caps.Model] {
				continue
			}
			if uerr := r.Unregister(caps.Model); uerr != nil {
				r.logger.Warnf("Failed to roll back model %d of backend %s: %v", caps.Model, name, uerr)
			}
		}
		return fmt.Errorf("backend %q: %w: %w", name, ErrLoad, err)
	}

	r.mu.Lock()
	r.loaded[name] = true
	r.mu.Unlock()

	r.logger.Infof("Loaded backend %s", name)
	return nil
}

// LoadAllBackends loads every known module. Failures are collected in the
// report and do not stop the other modules from loading.
func (r *Registry) LoadAllBackends() LoadReport {
	report := LoadReport{Failed: make(map[string]error)}

	for _, name := range r.Modules() {
		if err := r.LoadBackend(name); err != nil {
			r.logger.Warnf("Failed to load backend %s: %v", name, err)
			report.Failed[name] = err
			continue
		}
		report.Loaded = append(report.Loaded, name)
	}
	return report
}

// CheckBackend reports whether model is registered, loading the module of
// its family on demand.
func (r *Registry) CheckBackend(model Model) error {
	if _, err := r.Lookup(model); err == nil {
		return nil
	}

	r.mu.RLock()
	var candidates []string
	for name, mod := range r.modules {
		if mod.Family == model.Family() && !r.loaded[name] {
			candidates = append(candidates, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(candidates)

	for _, name := range candidates {
		if err := r.LoadBackend(name); err != nil {
			return err
		}
		if _, err := r.Lookup(model); err == nil {
			return nil
		}
	}
	return fmt.Errorf("model %d: %w", model, ErrNotFound)
}

// Probe asks each registered backend able to probe, in registration order,
// whether it recognises a device on cfg. The answer is advisory: nothing
// stops another process from using the port meanwhile.
func (r *Registry) Probe(cfg port.Config) (Model, error) {
	for caps := range r.Enumerate(nil) {
		p, ok := caps.Backend.(Prober)
		if !ok {
			continue
		}

		r.logger.Debugf("Probing %s with backend of model %d", cfg.Path, caps.Model)
		logger := r.logger.WithFields(log.Fields{"model": caps.Model, "port": cfg.Path})
		if model, found := p.Probe(r.open, cfg, logger); found {
			r.logger.Infof("Found model %d on %s", model, cfg.Path)
			return model, nil
		}
	}
	return ModelNone, fmt.Errorf("no amplifier on %s: %w", cfg.Path, ErrNotFound)
}

// acquire pins the caps of model for a new instance.
func (r *Registry) acquire(model Model) (*Caps, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps, ok := r.caps[model]
	if !ok {
		return nil, fmt.Errorf("model %d: %w", model, ErrNotFound)
	}
	r.live[model]++
	return caps, nil
}

func (r *Registry) release(model Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live[model] > 0 {
		r.live[model]--
	}
	if r.live[model] == 0 {
		delete(r.live, model)
	}
}

// Live returns the number of instances of model that are not cleaned up.
func (r *Registry) Live(model Model) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[model]
}
