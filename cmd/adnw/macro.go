package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"adnw/internal/host"
	"adnw/internal/macro"
	"adnw/internal/store"
)

func newMacroCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macro",
		Short: "Manage stored macros",
	}
	cmd.AddCommand(
		newMacroSetCmd(c),
		newMacroListCmd(c),
		newMacroRmCmd(c),
		newMacroPlayCmd(c),
	)
	return cmd
}

func newMacroSetCmd(c *cli) *cobra.Command {
	var seal bool
	cmd := &cobra.Command{
		Use:   "set <name> <text>...",
		Short: "Store a macro, replacing any macro of the same name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if seal {
				v, _, err := c.unlockVault(cmd, st)
				if err != nil {
					return err
				}
				defer v.Lock()
				st.SetSealer(v)
			}
			m := macro.Macro{Name: args[0], Text: strings.Join(args[1:], " ")}
			if err := st.PutMacro(m); err != nil {
				return err
			}
			c.log.Debug("macro stored", "name", m.Name, "sealed", seal)
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d characters)\n", m.Name, len([]rune(m.Text)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&seal, "seal", "s", false, "encrypt the macro with the vault")
	return cmd
}

func newMacroListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored macros",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			macros, err := st.ListMacros()
			if err != nil {
				return err
			}
			if len(macros) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no macros")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEALED\tUPDATED")
			for _, m := range macros {
				fmt.Fprintf(tw, "%s\t%t\t%s\n", m.Name, m.Sealed, m.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func newMacroRmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>...",
		Aliases: []string{"delete"},
		Short:   "Delete stored macros",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			for _, name := range args {
				if err := st.DeleteMacro(name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		},
	}
}

func newMacroPlayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "play <name>",
		Short: "Send a stored macro to the report sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.GetMacro(args[0])
			if errors.Is(err, store.ErrSealed) {
				v, _, uerr := c.unlockVault(cmd, st)
				if uerr != nil {
					return uerr
				}
				defer v.Lock()
				st.SetSealer(v)
				m, err = st.GetMacro(args[0])
			}
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
			sink, closeSink, err := openSink(cfg.Transport.Device, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeSink()

			if err := b.macros.Play(m); err != nil {
				return err
			}
			poller := host.NewPoller(b, sink,
				host.WithMacros(b.macros),
				host.WithRecorder(b.metrics),
				host.WithLogger(c.log.Slog().With("component", "host")),
			)
			for b.macros.Active() {
				if _, _, err := poller.Poll(); err != nil {
					return err
				}
			}
			c.log.Info("macro played", "name", m.Name, "reports", b.metrics.MacroReports.Value())
			return nil
		},
	}
}
