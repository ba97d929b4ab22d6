package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlquarizm/payment-gateway/internal/notifier"
	"github.com/mlquarizm/payment-gateway/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the outcome notifier worker pool",
	Long:  `Start the worker pool that delivers payment outcome events to the host webhook URL`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotifierWorker()
	},
}

var (
	maxWorkers   int
	jobQueueSize int
	webhookURL   string
)

func startNotifierWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.Default()

	notifierConfig := notifier.Config{
		WebhookURL:      getStringFlag(webhookURL, config.Notifier.WebhookURL),
		DeliveryTimeout: config.Notifier.DeliveryTimeout,
		MaxWorkers:      getIntFlag(maxWorkers, config.Notifier.MaxWorkers),
		JobQueueSize:    getIntFlag(jobQueueSize, config.Notifier.JobQueueSize),
		WorkerPoolSize:  config.Notifier.WorkerPoolSize,
	}

	lg.Info("starting outcome notifier worker",
		"max_workers", notifierConfig.MaxWorkers,
		"job_queue_size", notifierConfig.JobQueueSize,
		"webhook_url", notifierConfig.WebhookURL)

	outcomeNotifier := notifier.New(notifierConfig, lg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("notifier worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down notifier worker", "signal", sig)

	shutdownDone := make(chan struct{})
	go func() {
		outcomeNotifier.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("notifier worker shutdown complete")
	case <-time.After(30 * time.Second):
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	workerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	workerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	workerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Host webhook URL (overrides config)")
}
