package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ojp-io/ojp/internal/config"
)

// configCmd prints the resolved configuration, so an operator can verify
// how ojp.properties and any environment overlay actually resolved
// without starting the server.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the resolved server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			printConfig(cfg)
			return nil
		},
	}
}

func printConfig(cfg *config.Config) {
	fmt.Printf("environment:              %s\n", cfg.Environment)
	fmt.Printf("server.port:              %d\n", cfg.ServerPort)
	fmt.Printf("prometheus.port:          %d\n", cfg.PrometheusPort)
	fmt.Printf("thread.pool.size:         %d\n", cfg.ThreadPoolSize)
	fmt.Printf("max.request.size:         %d\n", cfg.MaxRequestSize)
	fmt.Printf("connection.idle.timeout:  %d ms\n", cfg.ConnectionIdleTimeoutMS)
	fmt.Printf("circuit.breaker.timeout:  %d ms\n", cfg.CircuitBreakerTimeoutMS)
	fmt.Printf("circuit.breaker.threshold: %d\n", cfg.CircuitBreakerThreshold)
	fmt.Printf("libs.path:                %s\n", cfg.LibsPath)
	fmt.Println()
	fmt.Printf("tracing.enabled:          %v\n", cfg.Tracing.Enabled)
	fmt.Printf("tracing.exporter:         %s\n", cfg.Tracing.Exporter)
	fmt.Printf("tracing.endpoint:         %s\n", cfg.Tracing.Endpoint)
	fmt.Printf("tracing.service.name:     %s\n", cfg.Tracing.ServiceName)
	fmt.Printf("tracing.sample.rate:      %v\n", cfg.Tracing.SampleRate)
	fmt.Println()
	fmt.Printf("cluster.enabled:          %v\n", cfg.Cluster.Enabled)
	fmt.Printf("cluster.local.id:         %s\n", cfg.Cluster.LocalID)
	fmt.Printf("cluster.local.address:    %s\n", cfg.Cluster.LocalAddress)
	fmt.Printf("cluster.redis.addr:       %s\n", cfg.Cluster.RedisAddr)
	fmt.Println()
	fmt.Printf("dataSource.poolEnabled:       %v\n", cfg.DataSourceDefaults.PoolEnabled)
	fmt.Printf("dataSource.maximumPoolSize:   %d\n", cfg.DataSourceDefaults.MaximumPoolSize)
	fmt.Printf("dataSource.minimumIdle:       %d\n", cfg.DataSourceDefaults.MinimumIdle)
	fmt.Printf("dataSource.idleTimeout:       %d ms\n", cfg.DataSourceDefaults.IdleTimeoutMS)
	fmt.Printf("dataSource.maxLifetime:       %d ms\n", cfg.DataSourceDefaults.MaxLifetimeMS)
	fmt.Printf("dataSource.connectionTimeout: %d ms\n", cfg.DataSourceDefaults.ConnectionTimeout)
}
