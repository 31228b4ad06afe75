package query

import (
	"errors"
)

// ListSeparator joins values of list-valued keys.
const ListSeparator = ","

// Options configures Merge.
type Options struct {
	// ListKeys are keys whose values accumulate instead of being overridden.
	// Keys not listed here always follow last-write-wins.
	ListKeys []string
}

// Merge renders descriptors in order into a single parameter set.
// It performs no I/O; the first invalid descriptor aborts the merge.
func Merge(opts Options, descriptors ...Descriptor) (*Params, error) {
	listKeys := make(map[string]bool, len(opts.ListKeys))
	for _, k := range opts.ListKeys {
		listKeys[k] = true
	}

	out := NewParams()
	for i, d := range descriptors {
		if d == nil {
			return nil, &InvalidFilterError{Index: i, Kind: "nil", Reason: "descriptor is nil"}
		}
		pairs, err := d.render()
		if err != nil {
			var ife *InvalidFilterError
			if errors.As(err, &ife) {
				ife.Index = i
				return nil, ife
			}
			return nil, &InvalidFilterError{Index: i, Kind: d.Kind(), Reason: "render failed", Err: err}
		}
		for _, p := range pairs {
			if p.key == "" {
				return nil, &InvalidFilterError{Index: i, Kind: d.Kind(), Reason: "empty key", Err: ErrEmptyKey}
			}
			if prev, ok := out.Get(p.key); ok && listKeys[p.key] {
				_ = out.Set(p.key, prev+ListSeparator+p.value)
				continue
			}
			_ = out.Set(p.key, p.value)
		}
	}
	return out, nil
}
