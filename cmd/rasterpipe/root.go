package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/adapters/resample"
	"github.com/Skryldev/rasterpipe/adapters/vips"
	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	"github.com/Skryldev/rasterpipe/hooks"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	backendName string
	cacheOn     bool
	simdOn      bool
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "rasterpipe",
	Short: "Orientation-aware image transforms",
	Long: `rasterpipe rotates, mirrors and resizes images, consuming the EXIF
orientation tag when asked to and writing an output tag that matches the
pixels it produced.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&backendName, "backend", "", "codec backend: go or vips")
	pf.BoolVar(&cacheOn, "cache", true, "cache decoded and transformed rasters")
	pf.BoolVar(&simdOn, "simd", true, "use the vectorised resampling kernel")
	pf.IntVar(&concurrency, "concurrency", 0, "maximum concurrent pipeline runs (0 = one per CPU)")
}

// loadConfig reads the config file, if any, and applies explicitly set flags
// on top of it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Changed("backend") {
		cfg.Backend = backendName
	}
	if flags.Changed("cache") {
		cfg.Engine.Cache = cacheOn
	}
	if flags.Changed("simd") {
		cfg.Engine.SIMD = simdOn
	}
	if flags.Changed("concurrency") {
		cfg.Engine.Concurrency = concurrency
	}
	return cfg, config.Validate(cfg)
}

// build wires a Processor for cfg. The returned cleanup shuts the libvips
// backend down when one was started.
func build(cfg config.Config, logger *slog.Logger) (*rasterpipe.Processor, func(), error) {
	opts := []rasterpipe.Option{rasterpipe.WithLogger(hooks.NewSlogLogger(logger))}
	cleanup := func() {}
	if cfg.Backend == "vips" {
		backend := vips.NewBackend(vips.BackendConfig{
			DefaultQuality: cfg.DefaultQuality,
			MaxWorkers:     cfg.Engine.Concurrency,
			Logger:         logger,
		})
		opts = append(opts,
			rasterpipe.WithCodecs(func(reg core.Registry) { vips.RegisterVipsBackend(reg, backend) }),
			rasterpipe.WithKernels(resample.Draw{}, backend.Resampler()),
		)
		cleanup = backend.Shutdown
	}
	proc, err := rasterpipe.New(cfg, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return proc, cleanup, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return hooks.NewSlog(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}
