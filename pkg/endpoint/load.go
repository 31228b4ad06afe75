package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of an endpoint definitions file.
//
//	endpoints:
//	  - name: groundwater
//	    path: timeseries/
//	    kind: timeseries
//	    page_size: 500
//	    list_keys: [uuid__in]
type File struct {
	Endpoints []Endpoint `yaml:"endpoints" json:"endpoints"`
}

// Load decodes endpoint definitions from YAML and validates them.
func Load(r io.Reader) ([]Endpoint, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Endpoints))
	for i := range f.Endpoints {
		if err := f.Endpoints[i].Validate(); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		if _, dup := seen[f.Endpoints[i].Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidEndpoint, f.Endpoints[i].Name)
		}
		seen[f.Endpoints[i].Name] = struct{}{}
	}
	return f.Endpoints, nil
}

// LoadFile reads endpoint definitions from a YAML file.
func LoadFile(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// LoadInto registers the endpoints of a YAML file, overriding built-ins
// with the same name.
func (r *Registry) LoadInto(path string) error {
	eps, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, ep := range eps {
		if err := r.Register(ep); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes endpoints in the File layout.
func Marshal(eps []Endpoint) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(File{Endpoints: eps}); err != nil {
		return nil, fmt.Errorf("encode endpoints: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode endpoints: %w", err)
	}
	return buf.Bytes(), nil
}
