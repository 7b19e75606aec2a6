package cli

import "github.com/cobliteam/shelver/internal/config"

// loadConfig loads the coordinator config from the path the --config flag
// or SHELVER_CONFIG environment variable resolved to.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath())
}
