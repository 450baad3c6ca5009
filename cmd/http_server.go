package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/audit"
	auditpg "github.com/frahmantamala/fleet-approval/internal/audit/postgres"
	"github.com/frahmantamala/fleet-approval/internal/auth"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/core/events"
	"github.com/frahmantamala/fleet-approval/internal/estimate"
	"github.com/frahmantamala/fleet-approval/internal/metrics"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	notificationpg "github.com/frahmantamala/fleet-approval/internal/notification/postgres"
	"github.com/frahmantamala/fleet-approval/internal/otp"
	otppg "github.com/frahmantamala/fleet-approval/internal/otp/postgres"
	"github.com/frahmantamala/fleet-approval/internal/pager"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/transport/rest"
	"github.com/frahmantamala/fleet-approval/internal/transport/swagger"
	"github.com/frahmantamala/fleet-approval/internal/user"
	userpg "github.com/frahmantamala/fleet-approval/internal/user/postgres"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	vehiclepg "github.com/frahmantamala/fleet-approval/internal/vehicle/postgres"
	"github.com/frahmantamala/fleet-approval/internal/workflow"
	workflowpg "github.com/frahmantamala/fleet-approval/internal/workflow/postgres"
	"github.com/frahmantamala/fleet-approval/pkg/logger"
)

var specPath string

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func init() {
	httpServerCmd.Flags().StringVar(&specPath, "spec", "./api/openapi.yml", "OpenAPI document served at /openapi.yml")
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *redis.Client
	Pager  *pager.Client
	Bus    *events.EventBus
	Router *chi.Mux
	Logger *slog.Logger
}

func (d *Dependencies) Close() {
	d.Pager.Shutdown()
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

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
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Close()
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := database.OpenGorm(db.DB, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = initRedis(cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Observability.Metrics.Enabled {
		m = metrics.New()
	}

	if _, err := swagger.Load(context.Background(), specPath); err != nil {
		log.Warn("openapi document not served cleanly", "error", err)
	}

	pagerClient := pager.NewClient(pager.Config{
		URL:          cfg.SMS.URL,
		Timeout:      cfg.SMS.Timeout,
		MaxWorkers:   cfg.SMS.MaxWorkers,
		JobQueueSize: cfg.SMS.JobQueueSize,
	}, log, pager.WithRecorder(m))

	bus := events.NewEventBus(log)
	hub := notification.NewHub(originChecker(cfg.Server.AllowedOrigins), log)
	bus.Subscribe(events.EventTypeNotificationCreated, hub.OnNotificationCreated)

	tx := database.NewTransactionManager(gdb)
	users := user.NewService(userpg.NewUserRepository(gdb), log)

	notificationRepo := notificationpg.NewNotificationRepository(gdb)
	dispatcher := notification.NewDispatcher(notificationRepo, pagerClient, log,
		notification.WithPublisher(bus),
		notification.WithRecorder(m),
	)
	inbox := notification.NewService(notificationRepo, cfg.Notification.PageSize, log)

	allocator := vehicle.NewAllocator(
		vehiclepg.NewVehicleRepository(gdb),
		users,
		dispatcher,
		tx,
		int64(cfg.Workflow.ServiceIntervalKm),
		log,
	)

	auditLog := audit.NewLog(auditpg.NewAuditRepository(db), log)

	gate := otp.NewGate(otppg.NewCodeRepository(gdb), tx, pagerClient, otp.Config{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Lockout:     cfg.OTP.LockoutWindow,
	}, log, otp.WithLockCache(otp.NewLockCache(rdb)), otp.WithRecorder(m))

	var guards []workflow.Guard
	if cfg.OTP.EnforceOnActs {
		guards = append(guards, workflow.NewOTPGuard(gate))
	}

	engine := workflow.NewEngine(workflow.Dependencies{
		Repo:      workflowpg.NewRequestRepository(gdb),
		Tx:        tx,
		Directory: users,
		Allocator: allocator,
		Estimator: estimate.NewEstimator(log),
		Audit:     auditLog,
		Notifier:  dispatcher,
		Recorder:  m,
		Guards:    guards,
		Logger:    log,
	})

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(users, tokens, cfg.Security.BCryptCost, log)

	base := transport.NewBaseHandler(log)
	checks := map[string]rest.Check{
		"database": db.PingContext,
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Base:         base,
		Health:       rest.NewHealthHandler(checks),
		Auth:         auth.NewHandler(base, authService),
		Tokens:       authService,
		User:         user.NewHandler(base),
		OTP:          otp.NewHandler(base, gate),
		Workflow:     workflow.NewHandler(base, engine),
		Vehicle:      vehicle.NewHandler(base, allocator),
		Audit:        audit.NewHandler(base, auditLog),
		Notification: notification.NewHandler(base, inbox),
		Hub:          hub,
		Metrics:      m,
		MetricsPath:  cfg.Observability.Metrics.Path,
		SpecPath:     specPath,
	}, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	return &Dependencies{
		Config: cfg,
		DB:     db,
		Gorm:   gdb,
		Redis:  rdb,
		Pager:  pagerClient,
		Bus:    bus,
		Router: router,
		Logger: log,
	}, nil
}

// initDB opens the shared pgx pool used by both sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg internal.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// originChecker gates websocket handshakes with the same list as CORS.
func originChecker(allowed string) func(r *http.Request) bool {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	if len(origins) == 0 || origins["*"] {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins[origin]
	}
}
