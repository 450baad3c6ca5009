package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	notificationpg "github.com/frahmantamala/fleet-approval/internal/notification/postgres"
	"github.com/frahmantamala/fleet-approval/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background maintenance workers such as the notification retention sweep.`,
}

var retentionWorkerCmd = &cobra.Command{
	Use:   "retention",
	Short: "Delete notifications past the retention window",
	Long:  `Periodically delete inbox entries older than the configured retention window.`,
	Run: func(cmd *cobra.Command, args []string) {
		startRetentionWorker()
	},
}

var (
	retentionDays     int
	retentionInterval time.Duration
	retentionOnce     bool
)

type pruner interface {
	Prune(ctx context.Context, retentionDays int) (int64, error)
}

func startRetentionWorker() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gdb, err := database.OpenGorm(db.DB, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
	}

	days := getIntFlag(retentionDays, cfg.Notification.RetentionDays)
	svc := notification.NewService(notificationpg.NewNotificationRepository(gdb), cfg.Notification.PageSize, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if retentionOnce {
		if _, err := svc.Prune(ctx, days); err != nil {
			lg.Error("retention sweep failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lg.Info("retention worker is running. Press Ctrl+C to stop.",
		"retention_days", days,
		"interval", retentionInterval)
	runRetention(ctx, svc, days, retentionInterval, lg)
	lg.Info("retention worker stopped")
}

// runRetention sweeps immediately and then on every tick until ctx ends.
func runRetention(ctx context.Context, p pruner, days int, interval time.Duration, lg *slog.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Prune(ctx, days); err != nil {
			lg.Error("retention sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	retentionWorkerCmd.Flags().IntVar(&retentionDays, "days", 0, "Retention window in days (overrides config)")
	retentionWorkerCmd.Flags().DurationVar(&retentionInterval, "interval", 24*time.Hour, "Time between sweeps")
	retentionWorkerCmd.Flags().BoolVar(&retentionOnce, "once", false, "Run a single sweep and exit")

	workerCmd.AddCommand(retentionWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
