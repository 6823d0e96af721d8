package config

import (
	"runtime"
	"sync"
)

// EngineSettings is a point-in-time copy of the engine configuration.
type EngineSettings struct {
	Cache        bool
	CacheEntries int
	SIMD         bool
	// Concurrency is nil when unset, meaning one run per CPU.
	Concurrency *int
}

// EffectiveConcurrency resolves an unset or non-positive value to NumCPU.
func (s EngineSettings) EffectiveConcurrency() int {
	if s.Concurrency == nil || *s.Concurrency <= 0 {
		return runtime.NumCPU()
	}
	return *s.Concurrency
}

// EngineConfig is the shared cache/SIMD/concurrency configuration read by
// every pipeline invocation. Mutate it only through the setters.
type EngineConfig struct {
	mu        sync.RWMutex
	s         EngineSettings
	listeners []func(EngineSettings)
}

// NewEngineConfig builds an engine handle from file/flag options.
func NewEngineConfig(o EngineOptions) *EngineConfig {
	s := EngineSettings{Cache: o.Cache, CacheEntries: o.CacheEntries, SIMD: o.SIMD}
	if s.CacheEntries <= 0 {
		s.CacheEntries = Default().Engine.CacheEntries
	}
	if o.Concurrency > 0 {
		n := o.Concurrency
		s.Concurrency = &n
	}
	return &EngineConfig{s: s}
}

var defaultEngine = sync.OnceValue(func() *EngineConfig {
	return NewEngineConfig(Default().Engine)
})

// Engine returns the lazily created process-wide engine configuration.
func Engine() *EngineConfig { return defaultEngine() }

// Snapshot returns the current settings.
func (e *EngineConfig) Snapshot() EngineSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.s
	if s.Concurrency != nil {
		n := *s.Concurrency
		s.Concurrency = &n
	}
	return s
}

// SetCache enables or disables the operation cache.
func (e *EngineConfig) SetCache(on bool) {
	e.update(func(s *EngineSettings) { s.Cache = on })
}

// SetSIMD selects the vectorised (true) or scalar (false) resampling kernel.
func (e *EngineConfig) SetSIMD(on bool) {
	e.update(func(s *EngineSettings) { s.SIMD = on })
}

// SetConcurrency caps simultaneous runs. nil restores the one-per-CPU default.
func (e *EngineConfig) SetConcurrency(n *int) {
	e.update(func(s *EngineSettings) {
		if n == nil || *n <= 0 {
			s.Concurrency = nil
			return
		}
		v := *n
		s.Concurrency = &v
	})
}

// Apply sets every field from o in one step, firing listeners once.
func (e *EngineConfig) Apply(o EngineOptions) {
	e.update(func(s *EngineSettings) {
		s.Cache, s.SIMD = o.Cache, o.SIMD
		if o.CacheEntries > 0 {
			s.CacheEntries = o.CacheEntries
		}
		s.Concurrency = nil
		if o.Concurrency > 0 {
			n := o.Concurrency
			s.Concurrency = &n
		}
	})
}

// OnChange registers fn to be called with the new settings after each update.
func (e *EngineConfig) OnChange(fn func(EngineSettings)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *EngineConfig) update(fn func(*EngineSettings)) {
	e.mu.Lock()
	fn(&e.s)
	listeners := make([]func(EngineSettings), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	snap := e.Snapshot()
	for _, l := range listeners {
		l(snap)
	}
}
