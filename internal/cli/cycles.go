package cli

import (
	"fmt"

	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/provider"
	"github.com/cobliteam/shelver/internal/registry"
	"github.com/spf13/cobra"
)

func newCyclesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "Check the catalog's base-image dependency graph for cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}
			loader, err := provider.New(providerOrDefault(cfg.Provider), map[string]any{"region": cfg.Region})
			if err != nil {
				return err
			}
			reg := registry.New(cat, loader)
			levels, err := reg.CheckCycles()
			if err != nil {
				return err
			}
			for i, level := range levels {
				fmt.Printf("level %d: %v\n", i, level)
			}
			return nil
		},
	}
}

func providerOrDefault(name string) string {
	if name == "" {
		return "test"
	}
	return name
}
