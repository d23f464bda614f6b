package dsconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() Defaults {
	return Defaults{
		PoolEnabled:       true,
		MaximumPoolSize:   10,
		MinimumIdle:       0,
		IdleTimeoutMS:     600000,
		MaxLifetimeMS:     1800000,
		ConnectionTimeout: 30000,
	}
}

func TestResolve_AppliesExplicitValuesAndDefaults(t *testing.T) {
	r := New(defaults())

	cfg := r.Resolve(map[string]string{
		"dataSourceName":    "myApp",
		"maximumPoolSize":   "50",
		"minimumIdle":       "10",
		"connectionTimeout": "15000",
	})

	assert.Equal(t, "myApp", cfg.DataSourceName)
	assert.Equal(t, 50, cfg.MaximumPoolSize)
	assert.Equal(t, 10, cfg.MinimumIdle)
	assert.Equal(t, 15000, cfg.ConnectionTimeout)
	assert.Equal(t, 600000, cfg.IdleTimeoutMS, "unset option keeps its default")
	assert.True(t, cfg.PoolEnabled)
}

func TestResolve_MalformedIntFallsBackToDefaultWithoutError(t *testing.T) {
	r := New(defaults())
	cfg := r.Resolve(map[string]string{"maximumPoolSize": "not-a-number"})
	assert.Equal(t, 10, cfg.MaximumPoolSize)
}

func TestResolve_UnrecognizedKeysArePassThrough(t *testing.T) {
	r := New(defaults())
	cfg := r.Resolve(map[string]string{"sslmode": "require"})
	assert.Equal(t, "require", cfg.PassThrough["sslmode"])
	_, isRecognizedPassThrough := cfg.PassThrough["maximumPoolSize"]
	assert.False(t, isRecognizedPassThrough)
}

func TestResolve_EqualPropertySetsReturnSamePointer(t *testing.T) {
	r := New(defaults())
	a := r.Resolve(map[string]string{"dataSourceName": "app", "maximumPoolSize": "5"})
	b := r.Resolve(map[string]string{"maximumPoolSize": "5", "dataSourceName": "app"})
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.CacheSize())
}

func TestClearCache_DropsEntriesButNotLiveReferences(t *testing.T) {
	r := New(defaults())
	first := r.Resolve(map[string]string{"dataSourceName": "app"})

	r.ClearCache()
	require.Equal(t, 0, r.CacheSize())

	second := r.Resolve(map[string]string{"dataSourceName": "app"})
	assert.NotSame(t, first, second, "a fresh resolve after clearCache produces a new object")
	assert.Equal(t, first.DataSourceName, second.DataSourceName)
}
