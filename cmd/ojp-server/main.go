// Command ojp-server runs the OJP (Open J Proxy) gRPC server: it loads
// ojp.properties, wires up every component, and serves the
// OJPService gRPC API until an interrupt or termination signal is
// received.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ojp-server",
		Short: "OJP server - a database protocol proxy",
		Long:  "ojp-server accepts jdbc:ojp[...] connections over gRPC and proxies them to a backend database, pooling and coordinating XA transactions on the client's behalf.",
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing ojp.properties (default: current directory)")

	rootCmd.AddCommand(
		serveCmd(),
		providersCmd(),
		configCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
