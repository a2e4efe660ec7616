package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devlearn/playground/internal/catalog"
	"github.com/devlearn/playground/internal/config"
	"github.com/devlearn/playground/internal/interp"
)

// loadConfig reads --config, or devlearn.yaml in the working directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return config.LoadFromDir(wd)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config.Load(path)
}

func loadLibrary(cfg *config.Config) (*catalog.Library, error) {
	lib, err := catalog.NewLibrary(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	return lib, nil
}

// newBridge builds the interpreter bridge from the interpreter section.
func newBridge(cfg config.InterpreterConfig) *interp.Bridge {
	fetcher := interp.NewFetcher()
	fetcher.Retry = interp.RetryConfig{
		MaxRetries: cfg.GetRetryMaxRetries(),
		BaseDelay:  cfg.GetRetryBaseDelay(),
		MaxDelay:   cfg.GetRetryMaxDelay(),
		Multiplier: interp.DefaultRetryConfig().Multiplier,
	}

	opts := interp.DefaultWasmOptions()
	opts.StdlibDir = cfg.StdlibDir
	if cfg.GuestLibDir != "" {
		opts.GuestLibDir = cfg.GuestLibDir
	}
	opts.CacheDir = cfg.CacheDir
	opts.RunTimeout = cfg.GetRunTimeout()
	opts.MaxConcurrent = cfg.GetMaxConcurrent()
	opts.Env = cfg.GetEnv()

	return interp.NewBridge(
		interp.NewLoader(cfg.Runtime, fetcher, opts),
		interp.WithLoadTimeout(cfg.GetLoadTimeout()),
	)
}
