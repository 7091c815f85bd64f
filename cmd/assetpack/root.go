package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/assetpack/assetpack/internal/config"
	"github.com/assetpack/assetpack/internal/logging"
	"github.com/assetpack/assetpack/pkg/clientscript"
)

var (
	configFiles []string
	logLevel    = logging.Info
	logFormat   = logging.Console
	jsonOut     bool
)

var rootCmd = &cobra.Command{
	Use:   "assetpack",
	Short: "Merge and cache page scripts and stylesheets",
	Long: `assetpack merges the scripts and stylesheets registered by a page into
content-addressed artifacts, caches them on disk and rewrites the page's
references to point at them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", []string{"config.yaml"}, "Configuration files or directories")
	rootCmd.PersistentFlags().
		Var(enumflag.New(&logLevel, "level", logging.Levels, enumflag.EnumCaseInsensitive), "log-level", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().
		Var(enumflag.New(&logFormat, "format", logging.Formats, enumflag.EnumCaseInsensitive), "log-format", "Log format: console or json")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Root, error) {
	bs, err := config.Merge(configFiles, false)
	if err != nil {
		return nil, err
	}
	return config.Parse(bs)
}

// newLogger honours the log flags, falling back to the configuration when
// they are not set.
func newLogger(cmd *cobra.Command, cfg *config.Root) *logging.Logger {
	level, format := logLevel, logFormat
	if cfg != nil {
		if !cmd.Flags().Changed("log-level") && cfg.Logging.Level != "" {
			level = logging.ParseLevel(cfg.Logging.Level)
		}
		if !cmd.Flags().Changed("log-format") && cfg.Logging.Format != "" {
			format = logging.ParseFormat(cfg.Logging.Format)
		}
	}
	return logging.New(logging.Config{Level: level, Format: format, Output: cmd.ErrOrStderr()})
}

func newManager(cmd *cobra.Command) (*clientscript.Manager, *logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := newLogger(cmd, cfg)

	m, err := clientscript.New(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return m.WithLogger(log), log, nil
}

type pagesFile struct {
	Pages []clientscript.PageSpec `json:"pages"`
}

func loadPages(path string) ([]clientscript.PageSpec, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages file: %w", err)
	}

	var f pagesFile
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pages file %s: %w", path, err)
	}
	return f.Pages, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
