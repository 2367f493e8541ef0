// Package propsvc implements the Property & Pad Service: live property
// and pad reads/writes against a running flow's pipeline. Every mutation
// is delegated to the owning Lifecycle Manager, which serializes it
// through its own run loop; this package never touches a
// mediaengine.Element or Pad directly.
package propsvc

import (
	"github.com/flowforge/runtime/pkg/flow"
	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// Service is the Property & Pad Service.
type Service struct {
	registry *flowregistry.Registry
	elements *registry.Registry
}

// New creates a Service over the Runtime Registry and Element Registry.
func New(runtimeRegistry *flowregistry.Registry, elementRegistry *registry.Registry) *Service {
	return &Service{registry: runtimeRegistry, elements: elementRegistry}
}

// ReadElementProperty reads one property's current value from a live
// element.
func (s *Service) ReadElementProperty(flowID, elementID, name string) (types.TypedValue, error) {
	m, err := s.registry.Get(flowID)
	if err != nil {
		return types.TypedValue{}, err
	}
	return m.ReadElementProperty(elementID, name)
}

// WriteElementProperty writes one property on a live element, resolving
// enum symbol names against the element's own enum class before
// dispatch, and emits a PropertyChanged event on success.
func (s *Service) WriteElementProperty(flowID, elementID, name string, value types.TypedValue) error {
	m, err := s.registry.Get(flowID)
	if err != nil {
		return err
	}
	if enumName, symbol, ok := value.AsEnum(); ok {
		if err := s.validateEnum(m, elementID, name, enumName, symbol); err != nil {
			return err
		}
	}
	return m.WriteElementProperty(elementID, name, value)
}

// ReadPadProperties reads every live property exposed by one pad,
// looking up the pad's property names from the Element Registry's
// cached introspection for the owning element's factory.
func (s *Service) ReadPadProperties(flowID, elementID, padName string) (map[string]types.TypedValue, error) {
	m, err := s.registry.Get(flowID)
	if err != nil {
		return nil, err
	}
	el, _, err := m.Element(elementID)
	if err != nil {
		return nil, err
	}
	infos, err := s.elements.LoadPadProperties(el.FactoryName(), padName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.TypedValue, len(infos))
	for _, info := range infos {
		v, err := m.ReadPadProperty(elementID, padName, info.Name)
		if err != nil {
			continue
		}
		out[info.Name] = v
	}
	return out, nil
}

// WritePadProperty writes one property on a live pad.
func (s *Service) WritePadProperty(flowID, elementID, padName, name string, value types.TypedValue) error {
	m, err := s.registry.Get(flowID)
	if err != nil {
		return err
	}
	return m.WritePadProperty(elementID, padName, name, value)
}

func (s *Service) validateEnum(m *flow.Manager, elementID, propertyName, enumName, symbol string) error {
	el, _, err := m.Element(elementID)
	if err != nil {
		return err
	}
	info, err := s.elements.LoadElementProperties(el.FactoryName())
	if err != nil {
		return &flowerrors.IntrospectionFailedError{FactoryName: el.FactoryName(), Detail: "enum resolution", Cause: err}
	}
	for _, p := range info {
		if p.Name != propertyName {
			continue
		}
		if p.EnumName != "" && p.EnumName != enumName {
			return &flowerrors.TypeMismatchError{ElementID: elementID, Name: propertyName, Expected: p.EnumName, Got: enumName}
		}
		for _, v := range p.EnumValues {
			if v == symbol {
				return nil
			}
		}
		return &flowerrors.ValueOutOfRangeError{ElementID: elementID, Name: propertyName, Detail: "symbol " + symbol + " not a member of " + enumName}
	}
	return &flowerrors.UnknownPropertyError{ElementID: elementID, Name: propertyName}
}
