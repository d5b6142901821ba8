package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ubertool-booking/internal/app"
	"ubertool-booking/internal/config"
	"ubertool-booking/internal/jobs"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'activate-due-bookings', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Ubertool Booking Cronjob Runner...", "log_level", cfg.Log.Level)

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer application.Close()

	jobRunner := jobs.NewJobRunner(application.Store.Bookings, &jobs.Services{
		Booking: application.Bookings,
		Payment: application.Payments,
	}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			application.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		application.Close()
		log.Fatalf("Failed to schedule jobs: %v", err)
	}

	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once. It reports false for an unknown name.
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "activate-due-bookings":
		jobRunner.ActivateDueBookings()
	case "complete-ended-bookings":
		jobRunner.CompleteEndedBookings()
	case "reconcile-stale-payments":
		jobRunner.ReconcileStalePayments()
	case "retry-owed-refunds":
		jobRunner.RetryOwedRefunds()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - activate-due-bookings\n")
		fmt.Printf("  - complete-ended-bookings\n")
		fmt.Printf("  - reconcile-stale-payments\n")
		fmt.Printf("  - retry-owed-refunds\n")
		fmt.Printf("  - all\n")
		return false
	}
	return true
}
