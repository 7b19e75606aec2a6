package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cobliteam/shelver/internal/archive"
	"github.com/cobliteam/shelver/internal/build"
	"github.com/cobliteam/shelver/internal/catalog"
	"github.com/cobliteam/shelver/internal/config"
	"github.com/cobliteam/shelver/internal/provider"
	"github.com/cobliteam/shelver/internal/registry"
	"github.com/cobliteam/shelver/internal/store"
	"github.com/spf13/cobra"
)

// setup loads the config, catalog, provider, registry, and coordinator
// shared by every subcommand that needs to run or inspect builds.
func setup() (*config.Config, *registry.Registry, *build.Coordinator, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading catalog: %w", err)
	}

	providerName := cfg.Provider
	if providerName == "" {
		providerName = "test"
	}
	loader, err := provider.New(providerName, map[string]any{"region": cfg.Region})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing provider %q: %w", providerName, err)
	}

	reg := registry.New(cat, loader)
	if err := reg.LoadExistingArtifacts(context.Background(), cfg.Region); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading existing artifacts: %w", err)
	}

	cancelTimeout, err := cfg.CancelTimeoutDuration()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	runner := &build.Runner{
		ArchiveCache: archive.New(cfg.BaseDir+"/.shelver/archives", cfg.BaseDir+"/.shelver/tmp"),
		Engine:       build.NewTextTemplateEngine(),
		BuilderCmd:   cfg.BuilderCmd,
		BaseDir:      cfg.BaseDir,
		LogDir:       cfg.BaseDir + "/.shelver/logs",
		KeepTmp:      cfg.KeepTmp,
		Log:          log,
	}

	coord := build.NewCoordinator(reg, runner, cfg.MaxBuilds, cancelTimeout, log)

	var st *store.Store
	if cfg.BaseDir != "" {
		st, err = store.Open(cfg.BaseDir + "/.shelver/history.db")
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("opening history store: %w", err)
		}
		coord.AddBuildDoneCallback(func(img *catalog.Image, version string, fut *build.Future) {
			artifacts, ferr := fut.Result()
			rec := store.Record{
				Image:      img.Name,
				Version:    version,
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			}
			switch {
			case ferr == context.Canceled:
				rec.Outcome = "canceled"
			case ferr != nil:
				rec.Outcome = "failure"
				rec.Error = ferr.Error()
			default:
				rec.Outcome = "success"
				for _, a := range artifacts {
					rec.ArtifactIDs = append(rec.ArtifactIDs, a.ID)
				}
			}
			if err := st.Insert(rec); err != nil {
				log.Warn("failed to persist build record")
			}
		})
	}

	return cfg, reg, coord, st, nil
}

func newBuildCommand() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "build [image...]",
		Short: "Schedule and run dependency-ordered builds for the named images",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, coord, st, err := setup()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			if _, err := reg.CheckCycles(); err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = reg.Catalog().Names()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, name := range names {
				img, err := reg.GetImage(name)
				if err != nil {
					return err
				}
				if _, err := coord.GetOrRunBuild(ctx, img, version); err != nil {
					return err
				}
			}

			if err := coord.RunAll(ctx); err != nil {
				return err
			}

			for _, name := range names {
				img, _ := reg.GetImage(name)
				if a, ok := reg.GetImageArtifact(img, version); ok {
					fmt.Printf("%s: %s\n", name, a.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "version to build (defaults to each image's current_version)")
	return cmd
}
