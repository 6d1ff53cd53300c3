package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/texgraph/internal/config"
	"github.com/roach88/texgraph/internal/store"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the persistent buffer cache",
		Long: `Inspect or prune the persistent buffer cache named by cache_path
(SQLite) or cache_url (PostgreSQL) in the configuration file.`,
	}
	cmd.AddCommand(newCacheStatsCommand(rootOpts))
	cmd.AddCommand(newCachePruneCommand(rootOpts))
	return cmd
}

func newCacheStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show cache entry counts and size",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, func(ctx context.Context, st store.Backend) (any, error) {
				stats, err := st.Stats(ctx)
				if err != nil {
					return nil, err
				}
				if rootOpts.Format == "json" {
					return stats, nil
				}
				return fmt.Sprintf("entries: %d\nbuffers: %d\nbytes:   %d", stats.Entries, stats.Buffers, stats.Bytes), nil
			})
		},
	}
}

func newCachePruneCommand(rootOpts *RootOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop all but the most recently used entries",
		Long: `Drop every cache entry except the --keep most recently used ones.

Example:
  texgraph cache prune --keep 100 --config texgraph.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("--keep must be >= 0, got %d", keep))
			}
			return withCache(rootOpts, cmd, func(ctx context.Context, st store.Backend) (any, error) {
				removed, err := st.Prune(ctx, keep)
				if err != nil {
					return nil, err
				}
				if rootOpts.Format == "json" {
					return map[string]int{"removed": removed, "kept": keep}, nil
				}
				return fmt.Sprintf("removed %d entries", removed), nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "number of entries to keep")
	return cmd
}

// withCache opens the configured store, runs fn and prints its result.
func withCache(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, store.Backend) (any, error)) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openCache(ctx, cfg)
	if err != nil {
		_ = formatter.Error(ErrCodeCache, err.Error(), nil)
		return err
	}
	defer st.Close()

	data, err := fn(ctx, st)
	if err != nil {
		_ = formatter.Error(ErrCodeCache, err.Error(), nil)
		return WrapExitError(ExitFailure, "cache operation failed", err)
	}
	return formatter.Success(data)
}

func openCache(ctx context.Context, cfg config.Config) (store.Backend, error) {
	if !cfg.HasCache() {
		return nil, NewExitError(ExitCommandError, "no cache_path or cache_url configured (use --config)")
	}
	st, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	return st, nil
}
