// Package cli implements the mbc command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/undergrace/mbc/internal/config"
	"github.com/undergrace/mbc/internal/logger"
	"github.com/undergrace/mbc/pkg/mbc"
	"github.com/undergrace/mbc/pkg/provider"
	"github.com/undergrace/mbc/pkg/store"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mbc",
	Short: "MBC - multi-turn agent session engine",
	Long: `MBC runs multi-turn AI agent sessions: a conversation loop with tool
execution, cost tracking, persistence, and composition into pipelines and
parallel orchestrations.`,
	Version: version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mbc/mbc.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// runtime bundles the collaborators most commands need.
type runtime struct {
	cfg    *config.Config
	logger *logger.Logger
	store  *store.SQLite
}

func openRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.DatabasePath, log.Logger)
	if err != nil {
		log.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: log, store: db}, nil
}

func (r *runtime) Close() {
	r.store.Close()
	r.logger.Close()
}

func (r *runtime) provider(name string) (mbc.Provider, error) {
	if name == "" {
		name = r.cfg.DefaultProvider
	}

	pc, ok := r.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", name)
	}

	return provider.New(provider.Options{
		Backend:  name,
		APIKey:   pc.APIKey,
		BaseURL:  pc.BaseURL,
		SiteURL:  pc.SiteURL,
		SiteName: pc.SiteName,
	})
}
