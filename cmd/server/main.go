package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"vtrack/internal/auth/token"
	"vtrack/internal/evidence"
	"vtrack/internal/guard"
	"vtrack/internal/platform/config"
	"vtrack/internal/platform/httpserver"
	"vtrack/internal/platform/logger"
	"vtrack/internal/platform/metrics"
	"vtrack/internal/platform/postgres"
	user "vtrack/internal/user/models"
	userservice "vtrack/internal/user/service"
	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/platform/httputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "vtrack",
		Usage: "Traffic violation citation service",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedAdminCommand(),
		},
		DefaultCommand: "serve",
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the outbox relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides VTRACK_ADDR)"},
			&cli.BoolFlag{Name: "migrate", Usage: "apply database migrations before serving"},
			&cli.StringFlag{Name: "admin-email", Usage: "bootstrap administrator email", Sources: cli.EnvVars("VTRACK_ADMIN_EMAIL")},
			&cli.StringFlag{Name: "admin-password", Usage: "bootstrap administrator password", Sources: cli.EnvVars("VTRACK_ADMIN_PASSWORD")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.FromEnv()
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}
			return serve(ctx, cfg, c.Bool("migrate"), c.String("admin-email"), c.String("admin-password"))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg := config.FromEnv()
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required")
			}
			log := logger.New(!cfg.Server.DevMode())
			db, err := postgres.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}

func seedAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-admin",
		Usage: "Create the first administrator account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true},
			&cli.StringFlag{Name: "first-name", Value: "System"},
			&cli.StringFlag{Name: "last-name", Value: "Administrator"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.FromEnv()
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required")
			}
			log := logger.New(!cfg.Server.DevMode())
			db, err := postgres.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			b := newPostgresBackend(db, cfg.Database)
			users := userservice.New(b.users, b.tx, guard.New(b.refs), userservice.WithLogger(log), userservice.WithEvents(b.outbox))
			v, err := users.SeedAdmin(ctx, user.RegisterRequest{
				Email:     c.String("email"),
				Password:  c.String("password"),
				FirstName: c.String("first-name"),
				LastName:  c.String("last-name"),
			})
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "administrator created", "user_id", v.ID, "email", v.Email)
			return nil
		},
	}
}

func serve(ctx context.Context, cfg config.Config, migrate bool, adminEmail, adminPassword string) error {
	log := logger.New(!cfg.Server.DevMode())
	slog.SetDefault(log)
	httputil.SetDevMode(cfg.Server.DevMode())

	b, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			log.ErrorContext(ctx, "failed to close database", "error", err)
		}
	}()
	if migrate {
		if b.db == nil {
			return errors.New("--migrate needs DATABASE_URL")
		}
		if err := postgres.Migrate(ctx, b.db); err != nil {
			return err
		}
	}

	revocations, redisClient, err := newRevocationList(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobs, err := evidence.New(ctx, cfg.Evidence, cfg.S3)
	if err != nil {
		return err
	}

	m := metrics.New()
	svc := newServices(b, blobs, evidence.LimitsFrom(cfg.Evidence), m, log)
	if adminEmail != "" && adminPassword != "" {
		if err := bootstrapAdmin(ctx, svc.users, adminEmail, adminPassword, log); err != nil {
			return err
		}
	}

	router := newRouter(routerDeps{
		cfg:         cfg,
		backend:     b,
		services:    svc,
		tokens:      token.New(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		revocations: revocations,
		redis:       redisClient,
		metrics:     m,
		gatherer:    prometheus.DefaultGatherer,
		logger:      log,
	})

	worker, closePublisher, err := newOutboxWorker(ctx, cfg.Kafka, b, m, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "starting vtrack", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router))
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}
	err = g.Wait()
	log.InfoContext(context.WithoutCancel(ctx), "vtrack stopped")
	return err
}

// bootstrapAdmin seeds the first administrator. An existing admin is not an error.
func bootstrapAdmin(ctx context.Context, users *userservice.Service, email, password string, log *slog.Logger) error {
	_, err := users.SeedAdmin(ctx, user.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "System",
		LastName:  "Administrator",
	})
	switch {
	case err == nil:
		log.InfoContext(ctx, "bootstrap administrator created", "email", email)
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.DebugContext(ctx, "bootstrap administrator skipped, one already exists")
	default:
		return err
	}
	return nil
}
