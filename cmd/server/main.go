package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrations "github.com/crewdeck/crewdeck/db"
	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/chat"
	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/db"
	"github.com/crewdeck/crewdeck/internal/discord"
	"github.com/crewdeck/crewdeck/internal/handlers"
	"github.com/crewdeck/crewdeck/internal/identity"
	"github.com/crewdeck/crewdeck/internal/logger"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/projects"
	"github.com/crewdeck/crewdeck/internal/server"
	"github.com/crewdeck/crewdeck/internal/session"
	"github.com/crewdeck/crewdeck/internal/store"
	"github.com/crewdeck/crewdeck/internal/store/postgres"
	"github.com/crewdeck/crewdeck/internal/users"
	"github.com/crewdeck/crewdeck/internal/version"
	"github.com/crewdeck/crewdeck/internal/workspaces"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	root := &cobra.Command{
		Use:     "crewdeck",
		Short:   "Crewdeck team workspace server",
		Version: version.GetInfo(),
	}
	root.AddCommand(serveCmd(), migrateCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|version|force N]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := provideConfig()
			if err != nil {
				return err
			}
			log := provideLogger(cfg)
			sub, err := fs.Sub(migrations.MigrationsFS, "migrations")
			if err != nil {
				return fmt.Errorf("migration fs: %w", err)
			}
			return db.RunMigrate(log, cfg.Postgres, sub, args[0], args[1:])
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideStore,
			provideSessions,
			provideOAuthClient,
			provideNotifier,
			metrics.New,

			provideUsersService,
			provideWorkspacesService,
			projects.NewService,
			chat.NewService,
			activity.NewService,
			provideResolver,
			provideJanitor,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(handlers.NewAuthHandler),
			provideServerHandler(handlers.NewOnboardingHandler),
			provideServerHandler(handlers.NewUsersHandler),
			provideServerHandler(handlers.NewWorkspacesHandler),
			provideServerHandler(handlers.NewProjectsHandler),

			provideServer,
		),
		fx.Invoke(
			startJanitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideStore(conn *pgxpool.Pool) store.Store {
	return postgres.New(conn)
}

func provideSessions(cfg config.Config) (*session.Manager, error) {
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("session secret required in config.toml")
	}
	sessionTTL, err := time.ParseDuration(cfg.Session.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("session ttl: %w", err)
	}
	flowTTL, err := time.ParseDuration(cfg.Session.FlowTTL)
	if err != nil {
		return nil, fmt.Errorf("flow ttl: %w", err)
	}
	return session.NewManager(cfg.Session.Secret, sessionTTL, flowTTL, cfg.Session.SecureCookies), nil
}

func provideOAuthClient(cfg config.Config) *discord.Client {
	return discord.NewClient(cfg.Discord)
}

func provideNotifier(log *slog.Logger, cfg config.Config) (*discord.Notifier, error) {
	return discord.NewNotifier(log, cfg.Discord.BotToken, cfg.Discord.NotifyChannelID)
}

func provideUsersService(log *slog.Logger, st store.Store, notifier *discord.Notifier) *users.Service {
	return users.NewService(log, st, notifier)
}

func provideWorkspacesService(log *slog.Logger, cfg config.Config, st store.Store) *workspaces.Service {
	return workspaces.NewService(log, st, workspaces.Policy{
		AllowGlobalAdminDelete: cfg.Workspace.AllowGlobalAdminDelete,
	})
}

func provideResolver(log *slog.Logger, st store.Store, sessions *session.Manager) *identity.Resolver {
	return identity.NewResolver(log, st.Users(), sessions)
}

func provideJanitor(log *slog.Logger, cfg config.Config, workspaceService *workspaces.Service) (*workspaces.Janitor, error) {
	return workspaces.NewJanitor(log, workspaceService, cfg.Workspace.InvitePurgeSchedule)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	Sessions       *session.Manager
	Resolver       *identity.Resolver
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Sessions, params.Resolver, params.ServerHandlers...)
}

func startJanitor(lc fx.Lifecycle, janitor *workspaces.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			janitor.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Crewdeck %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
