package config

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/arpguard/internal/core"
)

// Resolve merges the interface overrides over defaults.
func (ic InterfaceConfig) Resolve(defaults InterfaceSettings) (InterfaceSettings, error) {
	s := defaults
	if len(ic.Overrides) > 0 {
		if err := decodeStrict(ic.Overrides, &s); err != nil {
			return InterfaceSettings{}, err
		}
	}
	return s, s.Validate()
}

func decodeStrict(input map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// Runtime is an immutable snapshot of the flags the engine reads per packet.
// Replace it through Store; never modify a published snapshot.
type Runtime struct {
	Generation uint64
	Guard      GuardConfig
	Defaults   InterfaceSettings
	Interfaces map[string]InterfaceSettings
}

// Runtime builds the initial snapshot from cfg.
func (cfg *GlobalConfig) Runtime() (*Runtime, error) {
	rt := &Runtime{
		Guard:      cfg.Guard,
		Defaults:   cfg.Defaults,
		Interfaces: make(map[string]InterfaceSettings, len(cfg.Interfaces)),
	}
	for _, ic := range cfg.Interfaces {
		s, err := ic.Resolve(cfg.Defaults)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		rt.Interfaces[ic.Name] = s
	}
	return rt, nil
}

// For returns the settings of the named interface, or the defaults.
func (r *Runtime) For(name string) InterfaceSettings {
	if s, ok := r.Interfaces[name]; ok {
		return s
	}
	return r.Defaults
}

func (r *Runtime) clone() *Runtime {
	c := *r
	c.Interfaces = make(map[string]InterfaceSettings, len(r.Interfaces))
	for k, v := range r.Interfaces {
		c.Interfaces[k] = v
	}
	return &c
}

// Store publishes Runtime snapshots to packet-processing goroutines.
type Store struct {
	current atomic.Pointer[Runtime]
}

// NewStore creates a store holding rt.
func NewStore(rt *Runtime) *Store {
	s := &Store{}
	s.current.Store(rt)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Runtime {
	return s.current.Load()
}

// Replace publishes rt as the next generation, keeping nothing of the old one.
func (s *Store) Replace(rt *Runtime) {
	for {
		old := s.current.Load()
		rt.Generation = old.Generation + 1
		if s.current.CompareAndSwap(old, rt) {
			return
		}
	}
}

// Update applies fn to a copy of the current snapshot and publishes it.
// When fn fails nothing is published.
func (s *Store) Update(fn func(*Runtime) error) (*Runtime, error) {
	for {
		old := s.current.Load()
		next := old.clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.Generation = old.Generation + 1
		if s.current.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}

// Flags returns the flag values of scope: "guard", "defaults" or an
// interface name.
func (r *Runtime) Flags(scope string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	var src interface{}
	switch scope {
	case "guard":
		src = r.Guard
	case "defaults":
		src = r.Defaults
	default:
		s, ok := r.Interfaces[scope]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, scope)
		}
		src = s
	}
	if err := mapstructure.Decode(src, &out); err != nil {
		return nil, err
	}
	if d, ok := out["proxy_delay"]; ok {
		out["proxy_delay"] = fmt.Sprint(d)
	}
	return out, nil
}

// SetFlags applies values to scope: "guard", "defaults" or an interface name.
// Setting defaults does not touch interfaces that were already resolved.
func (r *Runtime) SetFlags(scope string, values map[string]interface{}) error {
	switch scope {
	case "guard":
		g := r.Guard
		if err := decodeStrict(values, &g); err != nil {
			return err
		}
		if g.AttackerCapacity < 1 {
			return fmt.Errorf("%w: attacker_capacity must be >= 1", core.ErrConfigInvalid)
		}
		r.Guard = g
	case "defaults":
		d := r.Defaults
		if err := decodeStrict(values, &d); err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return err
		}
		r.Defaults = d
	default:
		s, ok := r.Interfaces[scope]
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, scope)
		}
		if err := decodeStrict(values, &s); err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}
		r.Interfaces[scope] = s
	}
	return nil
}

// InterfaceNames returns the configured interface names in order.
func (r *Runtime) InterfaceNames() []string {
	names := make([]string, 0, len(r.Interfaces))
	for n := range r.Interfaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
