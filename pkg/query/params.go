package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Params is an ordered mapping of query parameter keys to values.
// Keys are unique; overriding a key keeps its original position.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Set stores value under key. Empty keys are rejected.
func (p *Params) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return nil
}

// SetDefault stores value only when key is not present yet.
func (p *Params) SetDefault(key, value string) error {
	if p.Has(key) {
		return nil
	}
	return p.Set(key, value)
}

// Get returns the value for key and whether it was present.
func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Del removes key and returns its previous value.
func (p *Params) Del(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := NewParams()
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out.keys = append(out.keys, k)
		out.values[k] = p.values[k]
	}
	return out
}

// Map returns the parameters as a plain map.
func (p *Params) Map() map[string]string {
	out := make(map[string]string, p.Len())
	if p == nil {
		return out
	}
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Values converts the parameters to url.Values.
func (p *Params) Values() url.Values {
	out := url.Values{}
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// Encode renders the parameters as a URL query string in insertion order.
func (p *Params) Encode() string {
	if p.Len() == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.values[k]))
	}
	return b.String()
}

// String implements fmt.Stringer.
func (p *Params) String() string {
	return p.Encode()
}

// ParseParams decodes a query string (with or without a leading '?')
// keeping key order. Repeated keys keep the last value.
func ParseParams(raw string) (*Params, error) {
	p := NewParams()
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	if raw == "" {
		return p, nil
	}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		if err := p.Set(key, value); err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
	}
	return p, nil
}
