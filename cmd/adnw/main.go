// adnw runs the split keyboard pipeline and manages its layouts, macros and
// vault.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adnw/internal/config"
	"adnw/internal/logging"
)

// Set by the linker.
var version = "dev"

// cli is the state shared by every command: the loaded configuration and
// the logger built from it.
type cli struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *logging.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "adnw",
		Short: "Split keyboard firmware pipeline",
		Long: `adnw scans a split key matrix, resolves layers, modifiers and
tap-hold keys, and sends HID boot keyboard reports to a USB gadget.

Without hardware the matrix is driven from the terminal or from text.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: platform config directory)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(c),
		newSimulateCmd(c),
		newLayoutCmd(c),
		newMacroCmd(c),
		newUnlockCmd(c),
		newTabulaCmd(c),
		newDiagCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and the logger. Validation is left to the
// commands: "config check" has to report a broken file rather than refuse
// to start.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lc, err := cfg.LoggingSettings()
	if err != nil {
		// Fall back so the error itself can still be logged.
		lc = logging.DefaultConfig()
	}
	if c.verbose {
		lc.Level = logging.LevelDebug
	}
	if lc.Output == "" || lc.Output == "stderr" {
		lc.Writer = cmd.ErrOrStderr()
	}
	log, lerr := logging.New(lc)
	if lerr != nil {
		return fmt.Errorf("init logging: %w", lerr)
	}
	logging.SetDefault(log)
	c.cfg, c.log = cfg, log
	if err != nil {
		log.Warn("logging settings ignored", "error", err)
	}
	return nil
}

// validated returns the configuration after checking it, logging warnings.
func (c *cli) validated() (*config.Config, error) {
	issues := config.Check(c.cfg)
	for _, w := range issues.Warnings() {
		c.log.Warn("config", "field", w.Field, "issue", w.Message)
	}
	if issues.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", issues.Errors())
	}
	return c.cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adnw %s (config schema v%d)\n", version, config.Version)
		},
	}
}
