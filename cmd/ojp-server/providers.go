package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ojp-io/ojp/internal/config"
	"github.com/ojp-io/ojp/internal/providerreg"
)

// providersCmd discovers and lists every registered pool provider, for an
// operator checking which drivers ojp.libs.path actually picked up.
func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "list discovered pool providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return listProviders(cmd.Context(), cfg)
		},
	}
}

func listProviders(ctx context.Context, cfg *config.Config) error {
	registry := providerreg.New(cfg.LibsPath)
	if err := registry.Discover(ctx); err != nil {
		return fmt.Errorf("discover pool providers: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tKIND\tDRIVER FAMILY\tBROKEN")
	for _, d := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", d.Name, d.Kind, d.DriverFamily, d.Broken())
	}
	return nil
}
