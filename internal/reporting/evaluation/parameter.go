package evaluation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParameterType is the declared Go type of a report or definition parameter.
type ParameterType string

const (
	TypeDate   ParameterType = "date"
	TypeInt    ParameterType = "int"
	TypeString ParameterType = "string"
)

// DateLayout is the wire format for date parameters.
const DateLayout = "2006-01-02"

// Parameter describes a named input accepted by a report, cohort or data definition.
type Parameter struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Type     ParameterType `json:"type"`
	Required bool          `json:"required"`
}

// NewParameter returns a required parameter.
func NewParameter(name, label string, typ ParameterType) Parameter {
	return Parameter{Name: name, Label: label, Type: typ, Required: true}
}

// OptionalParameter returns a parameter that binds NULL when no value is supplied.
func OptionalParameter(name, label string, typ ParameterType) Parameter {
	return Parameter{Name: name, Label: label, Type: typ}
}

// ParseValue converts a raw string into the parameter's Go type.
func (p Parameter) ParseValue(raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch p.Type {
	case TypeDate:
		t, err := time.ParseInLocation(DateLayout, raw, time.Local)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return nil, fmt.Errorf("parameter %s: invalid date %q", p.Name, raw)
		}
		return t, nil
	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: invalid integer %q", p.Name, raw)
		}
		return n, nil
	default:
		return raw, nil
	}
}

// FindParameter returns the parameter with the given name.
func FindParameter(params []Parameter, name string) (Parameter, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}
