// Package backend is a registry of blobdb.Backend implementations.
// Each implementation registers a Factory under a type name,
// usually in an init function,
// so that a backend can be chosen and configured at runtime
// from a decoded JSON object.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/blobdb"
)

// Factory creates a Backend from a config map.
type Factory func(context.Context, map[string]interface{}) (blobdb.Backend, error)

var (
	mu       sync.Mutex
	registry = make(map[string]Factory)
)

// Register associates a Factory with a type name.
func Register(key string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = f
}

// Create produces the Backend registered as key,
// passing conf to its Factory.
func Create(ctx context.Context, key string, conf map[string]interface{}) (blobdb.Backend, error) {
	mu.Lock()
	f, ok := registry[key]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig produces the Backend whose type name is in conf["type"].
func FromConfig(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, errors.New(`missing "type" parameter`)
	}
	return Create(ctx, typ, conf)
}

// Nested creates the Backend described by conf["nested"],
// for use by decorator backends.
func Nested(ctx context.Context, conf map[string]interface{}) (blobdb.Backend, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	if _, ok := nested["type"].(string); !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	b, err := FromConfig(ctx, nested)
	return b, errors.Wrap(err, "creating nested backend")
}

// Types lists the registered type names in sorted order.
func Types() []string {
	mu.Lock()
	defer mu.Unlock()

	result := make([]string, 0, len(registry))
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Int extracts an integer parameter from a config map.
// JSON numbers decode as float64 or, with UseNumber, as json.Number;
// both are accepted, as is a plain int.
func Int(conf map[string]interface{}, key string) (int64, bool, error) {
	v, ok := conf[key]
	if !ok {
		return 0, false, nil
	}
	switch v := v.(type) {
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case float64:
		return int64(v), true, nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return n, true, errors.Wrapf(err, "parsing %q parameter", key)
	}
	return 0, false, fmt.Errorf("%q parameter is a %T, not a number", key, v)
}
