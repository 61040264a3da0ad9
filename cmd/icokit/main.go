// Command icokit converts images to and from Windows ICO containers and
// serves the same conversions over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"icokit/internal/config"
	"icokit/internal/fetch"
	"icokit/internal/ico"
	imgpkg "icokit/internal/image"
	"icokit/internal/security"
	"icokit/pkg/logger"
)

// Build information set via ldflags
var (
	version = "dev"
	commit  = "none"
)

var (
	v          = config.New()
	configPath string
	app        *appState
)

type appState struct {
	cfg     *config.Config
	codec   *ico.Codec
	fetcher *fetch.Client
}

var rootCmd = &cobra.Command{
	Use:   "icokit",
	Short: "Encode, decode and inspect Windows ICO files",
	Long: `icokit converts a source image (PNG, JPEG, GIF, BMP, WebP, AVIF, SVG or ICO)
into a multi-resolution ICO container, extracts the best image from an ICO,
and reports on the directory of an ICO.

Settings come from --config, ICOKIT_* environment variables and flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "icokit %s (%s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")
	mustBind("log.level", pf.Lookup("log-level"))
	mustBind("log.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}
	logger.SetOutput(os.Stderr)
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}
	app = &appState{cfg: cfg, codec: codec}
	if cfg.Fetch.Enabled {
		guard := &security.Guard{AllowPrivate: cfg.Fetch.AllowPrivate}
		app.fetcher = fetch.NewClient(guard, cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, logger.Default())
	}
	logger.Debug("icokit %s starting %s", version, cmd.Name())
	return nil
}

func newCodec(cfg *config.Config) (*ico.Codec, error) {
	resampler, err := imgpkg.ParseResample(cfg.Encode.Resample)
	if err != nil {
		return nil, err
	}
	level, err := imgpkg.ParseCompression(cfg.Encode.PNGCompression)
	if err != nil {
		return nil, err
	}
	codec := ico.NewCodec(logger.Default())
	codec.Resize = resampler
	codec.PNG = imgpkg.PNGCodec{Level: level}
	codec.Workers = cfg.Encode.Workers
	return codec, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
