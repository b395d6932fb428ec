package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maptoposter/poster-api/internal/config"
	"github.com/maptoposter/poster-api/internal/mapcache"
)

type GlobalOptions struct {
	CacheDir string
}

// DefaultGlobalOptions reads the defaults from the environment, like the server does.
func DefaultGlobalOptions() GlobalOptions {
	o := GlobalOptions{CacheDir: "./cache"}
	if cfg, err := config.New(); err == nil {
		o.CacheDir = cfg.Service.CacheDir
	}
	return o
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.CacheDir, "cache-dir", o.CacheDir, "Directory of the map cache")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Store() *mapcache.Store {
	return mapcache.NewStore(o.CacheDir)
}
