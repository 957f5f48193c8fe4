package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-alliance-bot/internal/config"
	"github.com/tbourn/go-alliance-bot/internal/discord"
	httpapi "github.com/tbourn/go-alliance-bot/internal/http"
	"github.com/tbourn/go-alliance-bot/internal/observability"
	"github.com/tbourn/go-alliance-bot/internal/ratelimit"
	"github.com/tbourn/go-alliance-bot/internal/repo"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// shutdownTimeout bounds the graceful stop of the HTTP server and exporters.
const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve the admin HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireDiscord(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx, !noSync)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip slash command registration on ready")
	return cmd
}

func (a *app) serve(ctx context.Context, syncCommands bool) error {
	cfg := a.cfg

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(db)

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	platform := discord.NewPlatform(session, cfg.Policy.NickTemplate, cfg.Policy.LogChannelName)
	alliances := &repo.Alliances{DB: db}
	requests := &repo.Requests{DB: db}
	verifier := services.NewVerifier(alliances, &repo.Members{DB: db}, requests, platform, platform, policyFromConfig(cfg.Policy))
	admin := services.NewAllianceService(alliances, platform)

	bot := &discord.Bot{
		Session: session,
		Handler: &discord.Handler{
			Session:   session,
			Platform:  platform,
			Engine:    verifier,
			Admin:     admin,
			Limiter:   ratelimit.New(cfg.Discord.InteractionRPS, cfg.Discord.InteractionBurst),
			Timeout:   cfg.Discord.EventTimeout,
			IGNMinLen: cfg.Policy.IGNMinLen,
			IGNMaxLen: cfg.Policy.IGNMaxLen,
		},
		AppID:        cfg.Discord.AppID,
		GuildID:      cfg.Discord.GuildID,
		SyncCommands: syncCommands,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })

	if cfg.HTTP.Addr != "" {
		srv := newHTTPServer(cfg, httpapi.Deps{
			Alliances: admin,
			Ledger:    &services.RequestService{Repo: requests},
			Prompter:  verifier,
			Channels:  platform,
			Ready:     pingDB(db),
		})
		g.Go(func() error { return listen(gctx, srv) })
	} else {
		log.Info().Msg("HTTP_ADDR empty, admin HTTP server disabled")
	}

	log.Info().Str("version", version).Str("db", cfg.DB.Driver).Msg("alliancebot started")
	return g.Wait()
}

func newHTTPServer(cfg config.Config, deps httpapi.Deps) *http.Server {
	gin.SetMode(cfg.HTTP.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)
	if cfg.HTTP.AdminToken == "" {
		log.Warn().Msg("ADMIN_API_TOKEN empty, admin API not mounted")
	}
	return httpapi.NewServer(cfg.HTTP, r)
}

// listen serves until ctx is cancelled, then shuts the server down.
func listen(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("admin HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// policyFromConfig hands the engine its policy; the log channel name belongs
// to the platform adapter.
func policyFromConfig(p config.PolicyConfig) services.Policy {
	return services.Policy{
		NickTemplate:              p.NickTemplate,
		BypassRoleNames:           p.BypassRoleNames,
		VerifiedRoleName:          p.VerifiedRoleName,
		EnforceOnManualNickChange: p.EnforceOnManualNickChange,
		IGNMinLen:                 p.IGNMinLen,
		IGNMaxLen:                 p.IGNMaxLen,
	}
}

// openDB opens and migrates the configured store.
func openDB(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := repo.Open(repo.Options{Driver: cfg.Driver, Path: cfg.Path, URL: cfg.URL, Tracing: cfg.Tracing})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func pingDB(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
