// Command deckcore simulates protocol files and manages stored labware offsets
// and definitions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deckcore/internal/blob"
	"deckcore/internal/catalog"
	"deckcore/internal/config"
	"deckcore/internal/core"
)

// app carries the per-invocation configuration and the resources opened for it.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	closers  []func() error
	out      io.Writer
}

func (a *app) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) serviceOptions() ([]core.Option, error) {
	opts := []core.Option{core.WithLogger(core.NewZapLogger(a.log))}
	if a.registry != nil {
		rec, err := core.NewPrometheusRecorder(a.registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	if a.cfg.TraceFile != "" {
		f, err := os.OpenFile(a.cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.addCloser(f.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	return opts, nil
}

// offsetService opens the configured offset store.
func (a *app) offsetService(ctx context.Context) (*core.Service, error) {
	store, err := core.OpenPersistentStore(ctx, a.cfg.Storage(), core.NewDefaultRulesEngine(a.cfg.OffsetWarnMM))
	if err != nil {
		return nil, fmt.Errorf("open offset store: %w", err)
	}
	a.addCloser(func() error { return core.CloseStore(store) })
	opts, err := a.serviceOptions()
	if err != nil {
		return nil, err
	}
	return core.NewService(store, opts...), nil
}

// catalog opens the configured definition store.
func (a *app) catalog(ctx context.Context) (*catalog.Catalog, error) {
	store, err := blob.Open(ctx, a.cfg.Blob())
	if err != nil {
		return nil, fmt.Errorf("open definition store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.addCloser(c.Close)
	}
	return catalog.New(store, catalog.WithLogger(a.log)), nil
}

// runE wraps a command body so opened resources are released and metrics
// reported whether or not the body fails.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() { _ = a.log.Sync() }()
		err := fn(cmd, args)
		a.close()
		if a.registry != nil {
			if merr := writeMetrics(cmd.ErrOrStderr(), a.registry); merr != nil && err == nil {
				err = merr
			}
		}
		return err
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, log: zap.NewNop()}
	var verbose bool
	root := &cobra.Command{
		Use:           "deckcore",
		Short:         "Simulate liquid-handling protocols and manage labware offsets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			logger, err := cfg.Logger()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			a.log = logger
			if cfg.MetricsEnabled {
				a.registry = prometheus.NewRegistry()
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newSimulateCmd(a), newOffsetsCmd(a), newLabwareCmd(a))
	return root
}

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "deckcore:", err)
		os.Exit(1)
	}
}
