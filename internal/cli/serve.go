package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	ReadTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live graph over HTTP",
		Long: `Start a live graph with the configured worker pool and expose it over
HTTP. Nodes and edges are edited through the API; pixel reads wait for
the node to finish computing.

Example:
  texgraph serve --addr :8080
  texgraph serve --config texgraph.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&opts.ReadTimeout, "read-timeout", server.DefaultReadTimeout, "maximum wait for a pixel read")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	st, err := cfg.OpenStore(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	srvOpts := []server.Option{server.WithLogger(logger), server.WithReadTimeout(opts.ReadTimeout)}
	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing cache", "error", closeErr)
			}
		}()
		srvOpts = append(srvOpts, server.WithCacheStats(st))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	lg := engine.New(cfg.Options(logger, st)...)
	if err := lg.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start live graph", err)
	}
	defer lg.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving live graph on %s (workers=%d). Press Ctrl-C to stop.\n", opts.Addr, cfg.Workers)
	if err := server.New(lg, srvOpts...).Listen(ctx, opts.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("live graph stopped")
	return nil
}
