package evaluation

import (
	"fmt"
	"strings"
)

// Parameterizable is anything that declares the parameters it accepts.
type Parameterizable interface {
	Parameters() []Parameter
}

// Mapped pairs a definition with the expressions that feed its parameters from the
// enclosing context, e.g. "onDate=${endDate}".
type Mapped[T Parameterizable] struct {
	Parameterizable T
	Mappings        map[string]string
}

// Map parses mappings and checks that every mapped name is a declared parameter.
func Map[T Parameterizable](def T, mappings string) (Mapped[T], error) {
	m, err := ParseMappings(mappings)
	if err != nil {
		return Mapped[T]{}, err
	}
	for name := range m {
		if _, ok := FindParameter(def.Parameters(), name); !ok {
			return Mapped[T]{}, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
	}
	return Mapped[T]{Parameterizable: def, Mappings: m}, nil
}

// ParseMappings parses a comma separated list of name=expression pairs.
func ParseMappings(s string) (map[string]string, error) {
	out := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, expr, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter mapping %q", pair)
		}
		out[name] = strings.TrimSpace(expr)
	}
	return out, nil
}

// Resolve builds the child context the mapped definition is evaluated in.
// ${name} expressions copy the parent's value; anything else is parsed as a literal.
func (m Mapped[T]) Resolve(parent *Context) (*Context, error) {
	child := parent.Child()
	for _, p := range m.Parameterizable.Parameters() {
		expr, ok := m.Mappings[p.Name]
		if !ok {
			continue
		}
		if ref, isRef := reference(expr); isRef {
			if v, found := parent.ParameterValue(ref); found {
				child.SetParameterValue(p.Name, v)
			}
			continue
		}
		v, err := p.ParseValue(expr)
		if err != nil {
			return nil, err
		}
		child.SetParameterValue(p.Name, v)
	}
	return child, nil
}

func reference(expr string) (string, bool) {
	if strings.HasPrefix(expr, "${") && strings.HasSuffix(expr, "}") {
		return strings.TrimSpace(expr[2 : len(expr)-1]), true
	}
	return "", false
}
