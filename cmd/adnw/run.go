package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"adnw/internal/config"
	"adnw/internal/health"
	"adnw/internal/host"
	"adnw/internal/layout"
	"adnw/internal/logging"
	"adnw/internal/sim"
	"adnw/internal/store"
	"adnw/internal/tick"
)

func newRunCmd(c *cli) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keyboard pipeline",
		Long: `Run starts the tick driver, the poll loop and the report sink, plus the
metrics endpoint and the config and layout watchers when enabled.

Keys typed on an interactive terminal close the matching matrix contacts.
Press Ctrl-C or Ctrl-D to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.validated()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.run(ctx, cmd, cfg, fromStdin)
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "type characters read from standard input; end of input stops the board")
	return cmd
}

func openSink(device string, stdout io.Writer) (host.Sink, func() error, error) {
	if device == "-" {
		return host.NewWriterSink(stdout), func() error { return nil }, nil
	}
	g, err := host.OpenGadget(device)
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}

func crashDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Storage.Path), "crashes")
}

func (c *cli) run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, fromStdin bool) error {
	log := c.log.Slog()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	lay, err := loadLayout(cfg)
	if err != nil {
		return err
	}
	b, err := newBoard(cfg, lay, log)
	if err != nil {
		return err
	}
	sink, closeSink, err := openSink(cfg.Transport.Device, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeSink()

	poller := host.NewPoller(b, sink,
		host.WithMacros(b.macros),
		host.WithRecorder(b.metrics),
		host.WithLogger(log.With("component", "host")),
		host.WithWriteOnChange(cfg.Transport.WriteOnChange),
		host.WithInterval(cfg.PollInterval()),
	)
	driver := tick.NewDriver(b.clock, cfg.Timing.TickHz)
	crash := logging.NewCrashHandler(crashDir(cfg), version, c.log)
	crash.SetSession(st.Session().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn()
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			select {
			case errc <- fmt.Errorf("%s: %w", name, err):
			default:
			}
			cancel()
		}()
	}

	spawn("tick driver", func() error { return driver.Run(ctx) })
	spawn("poll loop", func() error {
		return crash.Guard(map[string]string{"loop": "poll", "layout": lay.Name()}, func() error {
			return poller.Run(ctx)
		})
	})
	checker := health.NewChecker()
	checker.RegisterFunc("poll", true, health.PollCheck(poller.LastPoll, 10*poller.Interval()))
	checker.RegisterFunc("sink", false, health.SinkCheck(poller.Failing))
	checker.RegisterFunc("store", true, health.PingCheck("store", st.Ping))
	if cfg.Metrics.Enabled {
		spawn("metrics", func() error {
			return b.metrics.Registry().Serve(ctx, cfg.Metrics.Listen, checker.Routes())
		})
		log.Info("metrics endpoint", "listen", cfg.Metrics.Listen)
	}

	reload := func(l *layout.Layout) {
		if err := b.kb.SetLayout(l); err != nil {
			log.Error("layout rejected", "name", l.Name(), "error", err)
			return
		}
		b.metrics.LayoutReloads.Inc()
		log.Info("layout reloaded", "name", l.Name(), "layers", l.Layers())
	}
	if cfg.Layout.Watch && cfg.Layout.Path != "" {
		w := layout.NewWatcher(cfg.Layout.Path, reload)
		if err := w.Start(ctx); err != nil {
			log.Warn("layout watcher not started", "error", err)
		} else {
			defer w.Close()
			spawn("layout watcher", func() error { return drain(ctx, log, "layout", w.Errors()) })
		}
	}
	if loader := c.watchConfig(ctx, reload); loader != nil {
		defer loader.Close()
		spawn("config watcher", func() error { return drain(ctx, log, "config", loader.Errors()) })
	}

	if fromStdin || isTerminal(cmd.InOrStdin()) {
		restore, err := rawMode(cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer restore()
		p := &presser{m: b.matrix, lay: b.kb.Layout, hold: time.Duration(b.window+2) * driver.Period()}
		// Not tracked by wg: a read from a terminal cannot be interrupted.
		go func() {
			err := readKeys(ctx, cmd.InOrStdin(), func(r rune) error {
				if err := p.press(ctx, r); err != nil && !errors.Is(err, sim.ErrNoKey) {
					return err
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("input", "error", err)
			}
			cancel()
		}()
	}

	checker.SetReady(true)
	log.Info("board running",
		"layout", lay.Name(),
		"device", cfg.Transport.Device,
		"tick_hz", cfg.Timing.TickHz,
		"session", st.Session())

	<-ctx.Done()
	wg.Wait()
	c.flushDiagnostics(st, b)
	log.Info("board stopped", "polls", b.metrics.Polls.Value(), "reports", b.metrics.ReportsSent.Value())

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// watchConfig reloads the layout when the config file changes its layout
// path. It returns nil when there is no file to watch.
func (c *cli) watchConfig(ctx context.Context, reload func(*layout.Layout)) *config.Loader {
	path := c.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		c.log.Warn("config watcher not started", "error", err)
		return nil
	}
	loader.OnChange(func(old, cur *config.Config) {
		if old.Layout.Path == cur.Layout.Path {
			return
		}
		l, err := loadLayout(cur)
		if err != nil {
			c.log.Error("layout from new config", "path", cur.Layout.Path, "error", err)
			return
		}
		reload(l)
	})
	if err := loader.Watch(ctx); err != nil {
		c.log.Warn("config watcher not started", "error", err)
		return nil
	}
	return loader
}

func drain(ctx context.Context, log *slog.Logger, what string, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("reload failed", "source", what, "error", err)
		}
	}
}

// flushDiagnostics journals the signal counts of this session.
func (c *cli) flushDiagnostics(st *store.Store, b *board) {
	counts := b.metrics.Signals()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if counts[name] == 0 {
			continue
		}
		if err := st.RecordDiagnostic(name, counts[name]); err != nil {
			c.log.Error("diagnostics not recorded", "error", err)
			return
		}
	}
}
