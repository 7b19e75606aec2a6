package cli

import (
	"fmt"

	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every image in the catalog and its current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}
			for _, img := range cat.Images() {
				base, baseVersion := img.BaseWithVersion()
				if base == "" {
					fmt.Printf("%-30s %s\n", img.Name, img.CurrentVersion)
				} else if baseVersion == "" {
					fmt.Printf("%-30s %s (base: %s)\n", img.Name, img.CurrentVersion, base)
				} else {
					fmt.Printf("%-30s %s (base: %s:%s)\n", img.Name, img.CurrentVersion, base, baseVersion)
				}
			}
			return nil
		},
	}
}
