package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-approval/internal"
	approvalpg "github.com/frahmantamala/payment-approval/internal/approval/postgres"
	"github.com/frahmantamala/payment-approval/internal/escalation"
	escalationpg "github.com/frahmantamala/payment-approval/internal/escalation/postgres"
	historypg "github.com/frahmantamala/payment-approval/internal/history/postgres"
	"github.com/frahmantamala/payment-approval/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers such as the reminder and escalation scheduler.`,
}

var escalationWorkerCmd = &cobra.Command{
	Use:   "escalations",
	Short: "Start the reminder and escalation scheduler",
	Long:  `Sweep payments waiting in an approval stage on a cron schedule and send reminders or escalations.`,
	Run: func(cmd *cobra.Command, args []string) {
		startEscalationWorker()
	},
}

var sweepOnceCmd = &cobra.Command{
	Use:   "sweep-once",
	Short: "Run a single reminder and escalation sweep",
	Run: func(cmd *cobra.Command, args []string) {
		runSweepOnce()
	},
}

var scheduleOverride string

type escalationWorker struct {
	scheduler *escalation.Scheduler
	close     func()
}

func buildEscalationWorker() (*escalationWorker, *slog.Logger, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := openGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	sender, nc, err := buildSender(cfg.Notification, lg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	escCfg, loc, err := escalationConfig(cfg.Escalation)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	payments := approvalpg.NewPaymentRepository(gdb, historypg.NewLedger(gdb))
	sweeper := escalation.NewSweeper(payments, escalationpg.NewNotificationLog(gdb), sender, escCfg, lg)

	spec := getStringFlag(scheduleOverride, cfg.Escalation.Schedule)
	scheduler, err := escalation.NewScheduler(sweeper, spec, loc, lg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if nc != nil {
			_ = nc.Drain()
		}
		if err := db.Close(); err != nil {
			lg.Error("Database close error", "error", err)
		}
	}
	return &escalationWorker{scheduler: scheduler, close: closeFn}, lg, nil
}

func escalationConfig(cfg internal.EscalationConfig) (escalation.Config, *time.Location, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return escalation.Config{}, nil, fmt.Errorf("escalation timezone: %w", err)
		}
	}
	return escalation.Config{
		ReminderAfter: cfg.ReminderAfter,
		EscalateAfter: cfg.EscalateAfter,
		Cooldown:      cfg.EscalationCooldown,
		Location:      loc,
	}, loc, nil
}

func startEscalationWorker() {
	worker, lg, err := buildEscalationWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start escalation worker: %v\n", err)
		os.Exit(1)
	}
	defer worker.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("escalation worker is running. Press Ctrl+C to stop.")
	if err := worker.scheduler.Run(ctx); err != nil {
		lg.Error("escalation worker stopped with error", "error", err)
	}
	lg.Info("escalation worker shutdown complete")
}

func runSweepOnce() {
	worker, _, err := buildEscalationWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build escalation worker: %v\n", err)
		os.Exit(1)
	}
	defer worker.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := worker.scheduler.Tick(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		worker.close()
		os.Exit(1)
	}
	fmt.Println(report.String())
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	escalationWorkerCmd.Flags().StringVar(&scheduleOverride, "schedule", "", "cron schedule for the sweep (overrides config)")

	workerCmd.AddCommand(escalationWorkerCmd)
	workerCmd.AddCommand(sweepOnceCmd)

	rootCmd.AddCommand(workerCmd)
}
