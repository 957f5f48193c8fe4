// Command alliancebot runs the alliance verification bot.
//
//	alliancebot serve           connect to Discord and serve the admin API
//	alliancebot migrate         create or update the database schema
//	alliancebot commands sync   register the slash commands and exit
//
// Configuration comes from the environment (optionally seeded from a .env
// file) and an optional POLICY_FILE; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-alliance-bot/internal/config"
	"github.com/tbourn/go-alliance-bot/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by the subcommands.
type app struct {
	envFile string
	cfg     config.Config
}

// @title                      alliancebot admin API
// @version                    1.0
// @description                Administration and audit surface of the alliance verification bot.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                "Bearer <ADMIN_API_TOKEN>"
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("alliancebot failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "alliancebot",
		Short:         "Alliance verification bot for Discord",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is fine)")

	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.commandsCmd())
	return root
}

// load reads .env (without overriding real variables), then the config, and
// installs the global logger.
func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	a.cfg = cfg
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
