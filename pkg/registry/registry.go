// Package registry implements the Element Registry: enumeration and
// classification of media-framework element factories, with lazy,
// panic-guarded property and pad-property loading and copy-on-write
// caching. A single struct owns the engine handle, translates framework
// errors into typed ones, and never lets a panic escape to the caller.
package registry

import (
	"fmt"
	"sync"

	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/metrics"
)

// ElementInfo is the registry-facing view of a factory: static metadata
// plus the category/media-class tags derived from it.
type ElementInfo struct {
	mediaengine.FactoryInfo
	IntrospectionFailed bool
	IntrospectionError  string
}

// Registry is the Element Registry. One instance is shared process-wide.
type Registry struct {
	engine mediaengine.Engine

	mu              sync.RWMutex
	populated       bool
	elements        map[string]*ElementInfo
	propertyCache   map[string][]mediaengine.PropertyInfo
	padPropertyCache map[string][]mediaengine.PropertyInfo
}

// New creates a Registry backed by the given engine.
func New(engine mediaengine.Engine) *Registry {
	return &Registry{
		engine:           engine,
		elements:         make(map[string]*ElementInfo),
		propertyCache:    make(map[string][]mediaengine.PropertyInfo),
		padPropertyCache: make(map[string][]mediaengine.PropertyInfo),
	}
}

func (r *Registry) ensurePopulated() {
	r.mu.RLock()
	done := r.populated
	r.mu.RUnlock()
	if done {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.populated {
		return
	}
	for _, fi := range r.engine.ListFactories() {
		r.elements[fi.Name] = &ElementInfo{FactoryInfo: withCategory(fi)}
	}
	r.populated = true
	log.WithComponent("registry").Info().Int("count", len(r.elements)).Msg("element registry populated")
}

// withCategory derives a coarse category from the klass string when the
// engine did not already supply one; real factories already carry this,
// the derivation exists for completeness against arbitrary engines.
func withCategory(fi mediaengine.FactoryInfo) mediaengine.FactoryInfo {
	if fi.Category != "" {
		return fi
	}
	fi.Category = categoryFromKlass(fi.Klass)
	return fi
}

func categoryFromKlass(klass string) string {
	switch {
	case klass == "":
		return "Generic"
	default:
		return klass
	}
}

// List returns the current, immutable snapshot of factory metadata.
func (r *Registry) List() []ElementInfo {
	r.ensurePopulated()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ElementInfo, 0, len(r.elements))
	for _, e := range r.elements {
		out = append(out, *e)
	}
	return out
}

// Lookup returns one factory's metadata.
func (r *Registry) Lookup(factoryName string) (ElementInfo, error) {
	r.ensurePopulated()
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.elements[factoryName]
	if !ok {
		return ElementInfo{}, &flowerrors.NotFoundError{Kind: "factory", ID: factoryName}
	}
	return *e, nil
}

// LoadElementProperties lazily introspects a factory's element
// properties, guarding the call so a crash or panic in the engine
// becomes a typed IntrospectionFailedError instead of terminating the
// process. Results are cached using copy-on-write semantics: a reader
// never blocks a concurrent population.
func (r *Registry) LoadElementProperties(factoryName string) (props []mediaengine.PropertyInfo, err error) {
	r.ensurePopulated()

	r.mu.RLock()
	if cached, ok := r.propertyCache[factoryName]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	_, known := r.elements[factoryName]
	r.mu.RUnlock()
	if !known {
		return nil, &flowerrors.NotFoundError{Kind: "factory", ID: factoryName}
	}

	defer func() {
		if rec := recover(); rec != nil {
			metrics.RegistryIntrospectionTotal.WithLabelValues("failed").Inc()
			log.WithFactory(factoryName).Error().Interface("panic", rec).Msg("panic during property introspection")
			err = &flowerrors.IntrospectionFailedError{FactoryName: factoryName, Detail: fmt.Sprintf("panic: %v", rec)}
			props = nil
		}
	}()

	loaded, loadErr := r.engine.LoadElementProperties(factoryName)
	if loadErr != nil {
		metrics.RegistryIntrospectionTotal.WithLabelValues("failed").Inc()
		r.mu.Lock()
		if e, ok := r.elements[factoryName]; ok {
			e.IntrospectionFailed = true
			e.IntrospectionError = loadErr.Error()
		}
		r.mu.Unlock()
		return nil, &flowerrors.IntrospectionFailedError{FactoryName: factoryName, Detail: loadErr.Error(), Cause: loadErr}
	}

	metrics.RegistryIntrospectionTotal.WithLabelValues("ok").Inc()
	r.mu.Lock()
	r.propertyCache[factoryName] = loaded
	r.mu.Unlock()
	return loaded, nil
}

// LoadPadProperties lazily introspects a pad template's properties,
// under the same panic guard and caching discipline as
// LoadElementProperties.
func (r *Registry) LoadPadProperties(factoryName, padTemplate string) (props []mediaengine.PropertyInfo, err error) {
	r.ensurePopulated()
	key := factoryName + "\x00" + padTemplate

	r.mu.RLock()
	if cached, ok := r.padPropertyCache[key]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	defer func() {
		if rec := recover(); rec != nil {
			metrics.RegistryIntrospectionTotal.WithLabelValues("failed").Inc()
			err = &flowerrors.IntrospectionFailedError{FactoryName: factoryName, Detail: fmt.Sprintf("panic: %v", rec)}
			props = nil
		}
	}()

	loaded, loadErr := r.engine.LoadPadProperties(factoryName, padTemplate)
	if loadErr != nil {
		metrics.RegistryIntrospectionTotal.WithLabelValues("failed").Inc()
		return nil, &flowerrors.IntrospectionFailedError{FactoryName: factoryName, Detail: loadErr.Error(), Cause: loadErr}
	}
	metrics.RegistryIntrospectionTotal.WithLabelValues("ok").Inc()

	r.mu.Lock()
	r.padPropertyCache[key] = loaded
	r.mu.Unlock()
	return loaded, nil
}

// IsSkipListed reports whether factoryName is excluded from
// discovery-time instantiation.
func (r *Registry) IsSkipListed(factoryName string) bool {
	return r.engine.IsSkipListed(factoryName)
}

// Engine returns the underlying media engine, for components (Pipeline
// Builder, Block Expander) that need to instantiate real elements rather
// than just read metadata.
func (r *Registry) Engine() mediaengine.Engine { return r.engine }
