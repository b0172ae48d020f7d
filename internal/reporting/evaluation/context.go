package evaluation

import (
	"fmt"
	"sort"
	"time"
)

// Record holds the labelled columns of a multi-column result row.
type Record map[string]interface{}

// Context carries parameter values and the base population for one evaluation.
// Child contexts share the parent's cache and base sets but start with no parameters.
type Context struct {
	params         map[string]interface{}
	EvaluationDate time.Time
	BaseCohort     []int
	BaseEncounters []int
	cache          Cache
}

// NewContext returns a context evaluated as of now with an empty in-memory cache.
func NewContext() *Context {
	return &Context{
		params:         make(map[string]interface{}),
		EvaluationDate: time.Now(),
		cache:          NewMemoryCache(),
	}
}

// SetParameterValue sets a parameter value. A nil value removes the parameter.
func (c *Context) SetParameterValue(name string, v interface{}) {
	if v == nil {
		delete(c.params, name)
		return
	}
	c.params[name] = v
}

// ParameterValue returns the value bound to name.
func (c *Context) ParameterValue(name string) (interface{}, bool) {
	v, ok := c.params[name]
	return v, ok
}

// ParameterValues returns a copy of all bound parameter values.
func (c *Context) ParameterValues() map[string]interface{} {
	out := make(map[string]interface{}, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// DateParameter returns the named parameter as a time, or the zero time if unset.
func (c *Context) DateParameter(name string) (time.Time, bool) {
	t, ok := c.params[name].(time.Time)
	return t, ok
}

// Child returns a context that shares the cache, evaluation date and base sets.
func (c *Context) Child() *Context {
	return &Context{
		params:         make(map[string]interface{}),
		EvaluationDate: c.EvaluationDate,
		BaseCohort:     c.BaseCohort,
		BaseEncounters: c.BaseEncounters,
		cache:          c.cache,
	}
}

// WithBaseEncounters returns a copy of c, parameters included, whose encounter
// data is restricted to ids.
func (c *Context) WithBaseEncounters(ids []int) *Context {
	cp := *c
	cp.params = c.ParameterValues()
	cp.BaseEncounters = ids
	return &cp
}

// Cache returns the evaluation cache.
func (c *Context) Cache() Cache {
	return c.cache
}

// SetCache replaces the evaluation cache.
func (c *Context) SetCache(cache Cache) {
	c.cache = cache
}

// Validate checks that every required parameter has a value.
func (c *Context) Validate(params []Parameter) error {
	for _, p := range params {
		if !p.Required {
			continue
		}
		if _, ok := c.params[p.Name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, p.Name)
		}
	}
	return nil
}

// CacheKey combines a definition key with the parameter values it was evaluated with.
func CacheKey(definitionKey string, params map[string]interface{}) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	key := definitionKey
	for _, n := range names {
		key += "|" + n + "=" + formatKeyValue(params[n])
	}
	return key
}

func formatKeyValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
