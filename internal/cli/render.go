package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/texgraph/internal/harness"
	"github.com/roach88/texgraph/internal/node"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	OutDir string
	All    bool // write every clean slot, not only output nodes
}

// RenderedFile is one PNG written by render.
type RenderedFile struct {
	Node string `json:"node"`
	Slot int    `json:"slot"`
	Path string `json:"path"`
	Size string `json:"size"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <scenario-file>",
		Short: "Run a scenario and write its outputs as PNG",
		Long: `Build the graph described by a scenario, apply its steps and write
the pixels of every output node to <out>/<ref>.png. With --all every clean
slot is written as <out>/<ref>.<slot>.png.

Example:
  texgraph render ./scenarios/mix_add.yaml -o ./out`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.All, "all", false, "write every clean slot")

	return cmd
}

func runRender(opts *RenderOptions, file string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.Run(ctx, scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeRenderFail, err.Error(), nil)
		return WrapExitError(ExitFailure, "render failed", err)
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	var written []RenderedFile
	for _, def := range scenario.Nodes {
		kind, err := node.ParseKind(def.Type)
		if err != nil || (!opts.All && !kind.IsOutput()) {
			continue
		}
		nr, ok := result.Nodes[def.Ref]
		if !ok {
			continue
		}
		for slot, b := range nr.Buffers {
			name := def.Ref + ".png"
			if opts.All {
				name = fmt.Sprintf("%s.%d.png", def.Ref, slot)
			}
			path := filepath.Join(opts.OutDir, name)
			if err := writePNG(path, b.EncodePNG); err != nil {
				return WrapExitError(ExitCommandError, "failed to write "+path, err)
			}
			formatter.VerboseLog("Wrote %s", path)
			written = append(written, RenderedFile{Node: def.Ref, Slot: slot, Path: path, Size: b.Size().String()})
		}
	}

	var cliErr *CLIError
	if !result.Pass {
		cliErr = &CLIError{Code: ErrCodeRenderFail, Message: fmt.Sprintf("%d assertion(s) failed", len(result.Errors)), Details: result.Errors}
	}
	if opts.Format == "json" {
		if err := formatter.Result(written, cliErr); err != nil {
			return err
		}
	} else {
		for _, f := range written {
			fmt.Fprintf(formatter.Writer, "%s (%s)\n", f.Path, f.Size)
		}
		if cliErr != nil {
			for _, e := range result.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", e)
			}
		}
	}
	if cliErr != nil {
		return NewExitError(ExitFailure, cliErr.Message)
	}
	return nil
}

func writePNG(path string, encode func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
