package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	"github.com/maptoposter/poster-api/internal/mapcache"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

func NewCmdCache() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the map cache.",
	}
	cmd.AddCommand(NewCmdCacheList())
	cmd.AddCommand(NewCmdCacheClear())
	return cmd
}

type CacheListOptions struct {
	GlobalOptions

	Output string
}

// CacheEntry is one line of the cache listing.
type CacheEntry struct {
	Key      string     `json:"key"`
	City     string     `json:"city"`
	Country  string     `json:"country"`
	Distance int        `json:"distance"`
	Coords   [2]float64 `json:"coords"`
	CachedAt time.Time  `json:"cached_at"`
	Valid    bool       `json:"valid"`
}

func DefaultCacheListOptions() *CacheListOptions {
	return &CacheListOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCacheList() *cobra.Command {
	o := DefaultCacheListOptions()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached locations, expired ones included.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *CacheListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *CacheListOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *CacheListOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	return nil
}

func (o *CacheListOptions) Run(ctx context.Context, out io.Writer) error {
	store := o.Store()

	entries := []CacheEntry{}
	for _, m := range store.List() {
		entries = append(entries, CacheEntry{
			Key:      m.CacheKey,
			City:     m.City,
			Country:  m.Country,
			Distance: m.Distance,
			Coords:   m.Coords,
			CachedAt: m.CachedAt.Time,
			Valid:    store.IsValid(mapcache.Key(m.CacheKey)),
		})
	}

	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshalling cache entries: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshalling cache entries: %w", err)
		}
		fmt.Fprintf(out, "%s\n", string(marshalled))
		return nil
	default:
		return printCacheTable(out, entries)
	}
}

func printCacheTable(out io.Writer, entries []CacheEntry) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "KEY\tCITY\tCOUNTRY\tDISTANCE\tCACHED AT\tVALID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\n", e.Key, e.City, e.Country, e.Distance, e.CachedAt.Format(time.RFC3339), e.Valid)
	}
	return w.Flush()
}

type CacheClearOptions struct {
	GlobalOptions
}

func DefaultCacheClearOptions() *CacheClearOptions {
	return &CacheClearOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCacheClear() *cobra.Command {
	o := DefaultCacheClearOptions()
	cmd := &cobra.Command{
		Use:   "clear [KEY]",
		Short: "Clear one cached location, or the whole cache without a key.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *CacheClearOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *CacheClearOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *CacheClearOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(args) == 1 {
		if key := mapcache.Key(args[0]); !key.Valid() {
			return fmt.Errorf("invalid cache key %q", key)
		}
	}
	return nil
}

func (o *CacheClearOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	store := o.Store()

	if len(args) == 0 {
		if !store.ClearAll() {
			return fmt.Errorf("failed to clear cache %s", store.Root())
		}
		fmt.Fprintf(out, "cleared cache %s\n", store.Root())
		return nil
	}

	key := mapcache.Key(args[0])
	if !store.Clear(key) {
		return fmt.Errorf("failed to clear cache entry %s", key)
	}
	fmt.Fprintf(out, "cleared %s\n", key)
	return nil
}
