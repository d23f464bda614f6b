// Package config loads OJP's process-wide configuration from
// ojp.properties / ojp-<env>.properties files, resolves the active
// environment, and parses the jdbc:ojp[...] connection URL, substituting
// ${property} placeholders from the loaded property set.
package config

import (
	"strconv"
	"time"
)

// Config is the central, process-wide configuration. Core keys recognized
// by the data-source configuration resolver live on DataSourceDefaults;
// server-level keys are their own fields.
type Config struct {
	// Properties is the full, merged property set (defaults file overlaid
	// by the per-environment file), used for ${property} URL placeholder
	// resolution and passed down to DataSourceConfiguration resolution.
	Properties map[string]string

	Environment string

	ServerPort              int
	PrometheusPort          int
	ThreadPoolSize          int
	MaxRequestSize          int
	ConnectionIdleTimeoutMS int
	CircuitBreakerTimeoutMS int
	CircuitBreakerThreshold int
	LibsPath                string

	Tracing TracingConfig
	Cluster ClusterConfig

	DataSourceDefaults DataSourceDefaults
}

// TracingConfig holds the ojp.tracing.* keys consumed by internal/tracing.
type TracingConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	ServiceName string
	SampleRate  float64
}

// ClusterConfig holds the ojp.cluster.* keys consumed by internal/cluster
// and the Redis-backed cache it shares state through.
type ClusterConfig struct {
	Enabled              bool
	LocalID              string
	LocalAddress         string
	RedisAddr            string
	HeartbeatIntervalMS  int
	HeartbeatTimeoutMS   int
}

// DataSourceDefaults holds the default values applied by the
// data-source configuration resolver for options not present in a
// client's property set.
type DataSourceDefaults struct {
	PoolEnabled       bool
	MaximumPoolSize   int
	MinimumIdle       int
	IdleTimeoutMS     int
	MaxLifetimeMS     int
	ConnectionTimeout int
}

// Default returns the built-in defaults for every recognized key, applied
// before any property file or environment variable is consulted.
func Default() *Config {
	return &Config{
		Properties:              map[string]string{},
		Environment:             "default",
		ServerPort:              1059,
		PrometheusPort:          9159,
		ThreadPoolSize:          200,
		MaxRequestSize:          4194304,
		ConnectionIdleTimeoutMS: 30000,
		CircuitBreakerTimeoutMS: 60000,
		CircuitBreakerThreshold: 3,
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "ojp-server",
			SampleRate:  1.0,
		},
		Cluster: ClusterConfig{
			Enabled:             false,
			LocalAddress:        "localhost:1059",
			HeartbeatIntervalMS: 5000,
			HeartbeatTimeoutMS:  15000,
		},
		DataSourceDefaults: DataSourceDefaults{
			PoolEnabled:       true,
			MaximumPoolSize:   10,
			MinimumIdle:       0,
			IdleTimeoutMS:     600000,
			MaxLifetimeMS:     1800000,
			ConnectionTimeout: 30000,
		},
	}
}

// ApplyProperties overlays recognized server-level keys from props onto c.
// Malformed integer values are left at their current (default) value
// rather than erroring, the same permissive behavior pool configuration
// resolution uses, applied uniformly to server-level integer keys too.
func (c *Config) ApplyProperties(props map[string]string) {
	for k, v := range props {
		c.Properties[k] = v
	}

	setInt(&c.ServerPort, props, "ojp.server.port")
	setInt(&c.PrometheusPort, props, "ojp.prometheus.port")
	setInt(&c.ThreadPoolSize, props, "ojp.thread.pool.size")
	setInt(&c.MaxRequestSize, props, "ojp.max.request.size")
	setInt(&c.ConnectionIdleTimeoutMS, props, "ojp.connection.idle.timeout")
	setInt(&c.CircuitBreakerTimeoutMS, props, "ojp.circuit.breaker.timeout")
	setInt(&c.CircuitBreakerThreshold, props, "ojp.circuit.breaker.threshold")
	if v, ok := props["ojp.libs.path"]; ok {
		c.LibsPath = v
	}

	if v, ok := props["ojp.tracing.enabled"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		}
	}
	if v, ok := props["ojp.tracing.exporter"]; ok {
		c.Tracing.Exporter = v
	}
	if v, ok := props["ojp.tracing.endpoint"]; ok {
		c.Tracing.Endpoint = v
	}
	if v, ok := props["ojp.tracing.service.name"]; ok {
		c.Tracing.ServiceName = v
	}
	if v, ok := props["ojp.tracing.sample.rate"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRate = f
		}
	}

	if v, ok := props["ojp.cluster.enabled"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cluster.Enabled = b
		}
	}
	if v, ok := props["ojp.cluster.local.id"]; ok {
		c.Cluster.LocalID = v
	}
	if v, ok := props["ojp.cluster.local.address"]; ok {
		c.Cluster.LocalAddress = v
	}
	if v, ok := props["ojp.cluster.redis.addr"]; ok {
		c.Cluster.RedisAddr = v
	}
	setInt(&c.Cluster.HeartbeatIntervalMS, props, "ojp.cluster.heartbeat.interval")
	setInt(&c.Cluster.HeartbeatTimeoutMS, props, "ojp.cluster.heartbeat.timeout")
}

func setInt(dst *int, props map[string]string, key string) {
	v, ok := props[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// ConnectionIdleTimeout returns the idle-session eviction window as a
// time.Duration.
func (c *Config) ConnectionIdleTimeout() time.Duration {
	return time.Duration(c.ConnectionIdleTimeoutMS) * time.Millisecond
}

// CircuitBreakerTimeout returns the circuit breaker open duration.
func (c *Config) CircuitBreakerTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerTimeoutMS) * time.Millisecond
}
