package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/payment-approval/internal"
	"github.com/frahmantamala/payment-approval/internal/approval"
	"github.com/frahmantamala/payment-approval/internal/auth"
	authpg "github.com/frahmantamala/payment-approval/internal/auth/postgres"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/notification"
	"github.com/frahmantamala/payment-approval/internal/transport/rest"
	"github.com/frahmantamala/payment-approval/internal/transport/swagger"
	"github.com/frahmantamala/payment-approval/pkg/logger"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	openAPIPath     = "./api/openapi.yml"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	Viper    *viper.Viper
	DB       *sqlx.DB
	NATS     *nats.Conn
	Router   *chi.Mux
	Approval *approvalStack
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.close()

	watchConfig(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, v, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := openGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sender, nc, err := buildSender(cfg.Notification, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := events.NewEventBus(lg)
	notification.NewEventHandler(sender, lg).RegisterEventHandlers(bus)

	stack, err := buildApproval(cfg, db, gdb, bus, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	authService := auth.NewService(
		authpg.NewRepository(gdb),
		auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTSecret+":refresh",
			cfg.Security.AccessTokenDuration, refreshTokenTTL),
		cfg.Security.BCryptCost,
	)

	checks := map[string]rest.Checker{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if nc != nil {
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}
	}

	if _, err := swagger.LoadSpec(context.Background(), openAPIPath); err != nil {
		lg.Warn("swagger UI will not have a valid document", "error", err)
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Routes{
		Health:         rest.NewHealthHandler(checks),
		Auth:           auth.NewHandler(authService),
		Payments:       approval.NewHandler(stack.Service),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    openAPIPath,
		Logger:         lg,
	})

	return &Dependencies{
		Config:   cfg,
		Viper:    v,
		DB:       db,
		NATS:     nc,
		Router:   router,
		Approval: stack,
		Logger:   lg,
	}, nil
}

func (d *Dependencies) close() {
	if d.NATS != nil {
		if err := d.NATS.Drain(); err != nil {
			d.Logger.Error("NATS drain error", "error", err)
		}
		d.NATS = nil
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("Database close error", "error", err)
		}
		d.DB = nil
	}
}

// watchConfig reloads the threshold policy and auto-post flag when config.yml changes.
// Other sections need a restart.
func watchConfig(deps *Dependencies) {
	if deps.Viper == nil {
		return
	}
	deps.Viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decodeConfig(deps.Viper)
		if err != nil {
			deps.Logger.Error("ignoring config change", "file", e.Name, "error", err)
			return
		}
		pcfg, err := policyConfig(cfg.Approval)
		if err != nil {
			deps.Logger.Error("ignoring config change", "file", e.Name, "error", err)
			return
		}
		deps.Approval.Policy.Reload(pcfg)
		deps.Approval.Service.UpdateSettings(approval.Settings{AutoPostOnApproval: cfg.Approval.AutoPostOnApproval})
	})
	deps.Viper.WatchConfig()
}
