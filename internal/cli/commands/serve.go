package commands

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumfields/sumfields/internal/api"
	"github.com/sumfields/sumfields/internal/cli/config"
	"github.com/sumfields/sumfields/internal/database"
	"github.com/sumfields/sumfields/internal/jobs"
	"github.com/sumfields/sumfields/internal/logger"
	"github.com/sumfields/sumfields/internal/trigger"
	"github.com/sumfields/sumfields/internal/web/auth"
	"github.com/sumfields/sumfields/internal/web/middleware"
	"github.com/sumfields/sumfields/internal/web/server"
)

var (
	servePort int
)

// triggerCheckInterval is how often serve compares the installed triggers
// with the compiled ones. Fiscal year boundaries change the compiled bodies.
const triggerCheckInterval = time.Hour

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the SumFields API",
		Long: `Serve the API3 endpoints:

  GET|POST /api/v3/SumFields/gendata    recompute every summary field
  GET|POST /api/v3/SumFields/getfields  field definitions
  GET|POST /api/v3/SumFields/getstatus  last generation status
  GET      /healthz

With data_update_method: via_cron, gendata also runs every cron_interval.`,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(cmd, cfg)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, closeStore, err := openStatusStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gen, err := newGenerator(cfg, reg, db, store, log)
	if err != nil {
		return err
	}

	handler := api.New(gen, reg, log).Handler(api.Options{
		Prefix:      cfg.Server.APIPrefix,
		Auth:        authConfig(cfg),
		CORSOrigins: cfg.Server.CORSOrigins,
		DB:          db,
	})

	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	srvConfig := server.DefaultConfig(handler)
	srvConfig.Address = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))

	srv, err := server.New(srvConfig)
	if err != nil {
		return err
	}
	gs := server.NewGracefulShutdown(srv, &server.ShutdownConfig{
		Timeout: server.DefaultShutdownConfig().Timeout,
		Logger:  log,
	})

	scheduler := jobs.NewScheduler(log)
	if cfg.Sumfields.UsesTriggers() {
		checkTriggers(ctx, cmd, cfg, db, log)
		err = scheduler.AddSchedule(jobs.Every("triggers-check", triggerCheckInterval, func(ctx context.Context) error {
			checkTriggers(ctx, cmd, cfg, db, log)
			return nil
		}))
	} else {
		err = scheduler.AddSchedule(jobs.Every("gendata", cfg.Sumfields.CronInterval, func(ctx context.Context) error {
			_, err := gen.Generate(ctx)
			return err
		}))
		if err == nil {
			if err := gen.Schedule(ctx); err != nil {
				log.Warn("failed to record generation status", "error", err)
			}
		}
	}
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	gs.RegisterHook(func(context.Context) error {
		scheduler.Stop()
		return nil
	})

	if !cfg.Auth.Enabled() {
		log.Warn("API authentication is disabled; set auth.jwt_secret or auth.api_key_hash")
	}
	dbName, _ := database.DatabaseName(cfg.Database.URL)
	log.Info("serving summary fields",
		"fields", reg.Len(),
		"method", cfg.Sumfields.DataUpdateMethod,
		"database", dbName,
		"address", srvConfig.Address)

	return gs.Run(ctx)
}

func authConfig(cfg *config.Config) *middleware.AuthConfig {
	if !cfg.Auth.Enabled() {
		return nil
	}
	ac := &middleware.AuthConfig{APIKeyHash: cfg.Auth.APIKeyHash}
	if cfg.Auth.JWTSecret != "" {
		ac.Tokens = auth.NewAuthService(cfg.Auth.JWTSecret, 0)
	}
	return ac
}

// checkTriggers logs when the installed triggers do not match the active
// fields or were compiled for another fiscal year. Serving continues either way.
func checkTriggers(ctx context.Context, cmd *cobra.Command, cfg *config.Config, db *sql.DB, log *logger.Logger) {
	want, err := compileTriggers(cmd, cfg)
	if err != nil {
		log.Warn("could not compile triggers", "error", err)
		return
	}
	installed, err := trigger.NewInstaller(db).Installed(ctx)
	if err != nil {
		log.Warn("could not read installed triggers", "error", err)
		return
	}
	if missing := trigger.Missing(want, installed); len(missing) > 0 {
		log.Warn("summary field triggers are missing; run sumfields triggers install", "missing", len(missing))
	}
	if outdated := trigger.Outdated(want, installed); len(outdated) > 0 {
		names := make([]string, len(outdated))
		for i, t := range outdated {
			names[i] = t.Name
		}
		log.Warn("summary field triggers are outdated; run sumfields triggers install", "outdated", names)
	}
}
