package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pysugar/launcher-accounts/internal/accounts"
	"github.com/pysugar/launcher-accounts/internal/auth/oauth"
	"github.com/pysugar/launcher-accounts/internal/auth/token"
	"github.com/pysugar/launcher-accounts/internal/config"
	"github.com/pysugar/launcher-accounts/internal/db"
	"github.com/pysugar/launcher-accounts/internal/logging"
	"github.com/pysugar/launcher-accounts/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand needs. It is filled in PersistentPreRunE.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg config.Config
	log *zap.Logger
	db  *gorm.DB
	svc *accounts.Service
}

func newRootCmd() *cobra.Command {
	a := &app{}
	c := &cobra.Command{
		Use:           "launcher-auth",
		Short:         "Manage game launcher accounts",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "version", "help":
				return nil
			}
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	c.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: "+config.FileEnv+" or launcher-auth.yaml)")
	c.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path, overrides database.path")
	c.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "", "log level (debug|info|warn|error)")

	c.AddCommand(
		newServeCmd(a),
		newLoginCmd(a),
		newAccountsCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return c
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	if a.log, err = logging.New(cfg.Log); err != nil {
		return err
	}

	if a.db, err = db.InitDB(cfg.Database.Path, a.log); err != nil {
		return errors.Wrap(err, "initialize database")
	}

	provider := oauth.NewProvider(cfg.Provider.OAuth(), nil, a.log)
	a.svc = accounts.NewService(a.db, provider, a.log,
		accounts.WithRefreshOptions(
			token.WithInterval(cfg.Refresh.Interval),
			token.WithMargin(cfg.Refresh.Margin),
			token.WithPermanent(oauth.IsPermanent),
		))
	return nil
}

func (a *app) close() error {
	var err error
	if a.svc != nil {
		err = a.svc.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}
