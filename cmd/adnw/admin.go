package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"adnw/internal/config"
	"adnw/internal/logging"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and show the configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report every configuration problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.Check(c.cfg)
			out := cmd.OutOrStdout()
			for _, e := range issues {
				level := "error"
				if e.IsWarning() {
					level = "warning"
				}
				fmt.Fprintf(out, "%s: %s: %s\n", level, e.Field, e.Message)
			}
			if issues.HasErrors() {
				return fmt.Errorf("%d errors: %w", len(issues.Errors()), config.ErrInvalidConfig)
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(c.cfg)
		},
	}

	cmd.AddCommand(initCmd, checkCmd, showCmd)
	return cmd
}

func newDiagCmd(c *cli) *cobra.Command {
	var (
		limit        int
		clearCrashes bool
	)
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Show the diagnostics journal and crash reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			crashes := logging.NewCrashHandler(crashDir(c.cfg), version, c.log)
			if clearCrashes {
				return crashes.Clear()
			}

			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			entries, err := st.Diagnostics(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no diagnostics recorded")
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RECORDED\tSESSION\tSIGNAL\tCYCLES")
				for _, d := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n",
						d.RecordedAt.Format("2006-01-02 15:04:05"), d.Session.String()[:8], d.Signal, d.Count)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			reports, err := crashes.Reports()
			if err != nil {
				return err
			}
			for _, r := range reports {
				fmt.Fprintf(out, "crash %s version=%s session=%s: %s\n",
					r.Timestamp.Format("2006-01-02 15:04:05"), r.Version, r.Session, r.PanicValue)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of journal entries")
	cmd.Flags().BoolVar(&clearCrashes, "clear-crashes", false, "delete stored crash reports")
	return cmd
}
