// Package xareflect builds vendor XA datasources by name without the core
// OJP packages importing any concrete vendor driver. Each vendor
// subpackage registers a constructor at init() time; configuring the
// resulting value is then driven entirely through reflection over its
// exported Set<Property> methods, the Go analogue of the classpath
// reflection a JDBC XADataSource factory would use to discover and
// configure a vendor's implementation.
package xareflect

import (
	"fmt"
	"reflect"
	"sync"
)

// FactorySpec describes how to construct a vendor XA datasource value.
type FactorySpec struct {
	// New returns a fresh, unconfigured datasource value (typically a
	// pointer to a vendor-specific struct).
	New func() any
}

var (
	mu       sync.RWMutex
	registry = map[string]FactorySpec{}
)

// Register adds a vendor factory under driverFamily (e.g. "postgresql").
// Called from a vendor subpackage's init(), so this package never imports
// a concrete driver.
func Register(driverFamily string, spec FactorySpec) {
	mu.Lock()
	defer mu.Unlock()
	registry[driverFamily] = spec
}

// Lookup returns the registered factory for driverFamily.
func Lookup(driverFamily string) (FactorySpec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	spec, ok := registry[driverFamily]
	return spec, ok
}

// knownProperties maps a DataSourceConfiguration property key to the
// exported setter method name a vendor datasource must implement to
// receive it. A vendor missing a given setter simply does not receive
// that property — not every vendor needs every property.
var knownProperties = map[string]string{
	"serverName":   "SetServerName",
	"portNumber":   "SetPortNumber",
	"databaseName": "SetDatabaseName",
	"user":         "SetUser",
	"password":     "SetPassword",
	"url":          "SetURL",
}

// Build constructs and reflectively configures a vendor XA datasource for
// driverFamily from props.
func Build(driverFamily string, props map[string]string) (any, error) {
	spec, ok := Lookup(driverFamily)
	if !ok {
		return nil, fmt.Errorf("xareflect: no XA datasource registered for driver family %q", driverFamily)
	}
	ds := spec.New()
	v := reflect.ValueOf(ds)

	for key, setterName := range knownProperties {
		raw, ok := props[key]
		if !ok || raw == "" {
			continue
		}
		method := v.MethodByName(setterName)
		if !method.IsValid() {
			continue
		}
		if err := invokeSetter(method, setterName, raw); err != nil {
			return nil, fmt.Errorf("xareflect: %s.%s: %w", driverFamily, setterName, err)
		}
	}
	return ds, nil
}

// invokeSetter calls a single-argument setter, converting raw — always a
// string, since it comes from a property set — to whatever concrete
// parameter type the method expects.
func invokeSetter(method reflect.Value, name, raw string) error {
	t := method.Type()
	if t.NumIn() != 1 {
		return fmt.Errorf("setter %s must take exactly one argument", name)
	}
	argType := t.In(0)
	switch argType.Kind() {
	case reflect.String:
		method.Call([]reflect.Value{reflect.ValueOf(raw).Convert(argType)})
	case reflect.Int, reflect.Int32, reflect.Int64:
		var n int64
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
			return fmt.Errorf("parse %q as int: %w", raw, err)
		}
		method.Call([]reflect.Value{reflect.ValueOf(n).Convert(argType)})
	default:
		return fmt.Errorf("unsupported setter argument kind %s", argType.Kind())
	}
	return nil
}
