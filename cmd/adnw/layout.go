package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adnw/internal/layout"
)

func newLayoutCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Validate and print layouts",
	}
	cmd.AddCommand(newLayoutCheckCmd(c), newLayoutDumpCmd(c))
	return cmd
}

func newLayoutCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a layout file against the schema and the configured matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lay, err := layout.Load(args[0])
			if err != nil {
				return err
			}
			if lay.Rows() != c.cfg.Matrix.Rows || lay.Cols() != c.cfg.Matrix.Cols {
				return fmt.Errorf("%s: layout is %dx%d but the matrix is %dx%d",
					args[0], lay.Rows(), lay.Cols(), c.cfg.Matrix.Rows, c.cfg.Matrix.Cols)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (%q, %dx%d, %d layers)\n", args[0], lay.Name(), lay.Rows(), lay.Cols(), lay.Layers())
			for n := 0; n < lay.Layers(); n++ {
				fmt.Fprintf(out, "  %d %s\n", n, lay.LayerName(n))
			}
			return nil
		},
	}
}

func newLayoutDumpCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Print a layout, by default the configured one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				lay *layout.Layout
				err error
			)
			if len(args) == 1 {
				lay, err = layout.Load(args[0])
			} else {
				lay, err = loadLayout(c.cfg)
			}
			if err != nil {
				return err
			}
			f := layout.Format(format)
			switch f {
			case layout.FormatYAML, layout.FormatTOML, layout.FormatJSON:
			default:
				return fmt.Errorf("unknown format %q (want yaml, toml or json)", format)
			}
			data, err := lay.Document().Encode(f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(layout.FormatYAML), "output format: yaml, toml or json")
	return cmd
}
