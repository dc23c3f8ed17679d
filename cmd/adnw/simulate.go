package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"adnw/internal/keyboard"
	"adnw/internal/sim"
)

func newSimulateCmd(c *cli) *cobra.Command {
	var (
		text   string
		bounce int
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Type through the pipeline and print the reports it produces",
		Long: `Simulate steps the pipeline one tick per cycle, without real time. With
--text the string is typed and the distinct reports are printed. Otherwise
characters are read from the terminal until Ctrl-C or Ctrl-D.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			lay, err := loadLayout(cfg)
			if err != nil {
				return err
			}
			b, err := newBoard(cfg, lay, c.log.Slog())
			if err != nil {
				return err
			}
			typist := b.typist()
			typist.Bounce = bounce

			out := &reportPrinter{w: cmd.OutOrStdout(), raw: raw, eol: "\n"}
			if cmd.Flags().Changed("text") {
				reps, err := typist.Type(lay, text)
				out.print(reps)
				return err
			}

			restore, err := rawMode(cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer restore()
			if isTerminal(cmd.InOrStdin()) {
				out.eol = "\r\n"
			}
			return readKeys(cmd.Context(), cmd.InOrStdin(), func(r rune) error {
				reps, err := typist.Type(b.kb.Layout(), string(r))
				if errors.Is(err, sim.ErrNoKey) {
					fmt.Fprintf(out.w, "%q: no key%s", r, out.eol)
					return nil
				}
				out.print(reps)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "text to type")
	cmd.Flags().IntVar(&bounce, "bounce", 0, "chattering cycles before each press settles")
	cmd.Flags().BoolVar(&raw, "raw", false, "print every cycle's report, not only changes")
	return cmd
}

// reportPrinter prints reports, dropping repeats of the last one printed
// unless raw is set.
type reportPrinter struct {
	w    io.Writer
	raw  bool
	eol  string
	last keyboard.Report
	any  bool
}

func (p *reportPrinter) print(reps []keyboard.Report) {
	for _, r := range reps {
		if !p.raw && p.any && r == p.last {
			continue
		}
		p.last, p.any = r, true
		fmt.Fprint(p.w, describe(r), p.eol)
	}
}
