// simulator replays a synthetic campus workload against a running server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"campus-lostfound/internal/utils"
	"campus-lostfound/simulator"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// The simulator signs tokens with the server's secret.
	_ = godotenv.Load()

	config := simulator.DefaultSimConfig()
	config.JWTSecret = os.Getenv("JWT_SECRET")

	flagSet := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	flagSet.StringVar(&config.ServerURL, "url", config.ServerURL, "server base URL")
	flagSet.StringVar(&config.JWTSecret, "jwt-secret", config.JWTSecret, "secret used to sign user tokens (default $JWT_SECRET)")
	flagSet.IntVar(&config.NumUsers, "users", config.NumUsers, "number of simulated users")
	flagSet.DurationVar(&config.SimulationTime, "duration", config.SimulationTime, "how long to run")
	flagSet.Float64Var(&config.MessageFrequency, "message-rate", config.MessageFrequency, "messages per user per minute")
	flagSet.Float64Var(&config.ReadFrequency, "read-rate", config.ReadFrequency, "conversation reads per user per minute")
	flagSet.Float64Var(&config.RecallPercentage, "recall", config.RecallPercentage, "share of messages recalled")
	flagSet.Float64Var(&config.RejectPercentage, "reject", config.RejectPercentage, "share of messages with blocked terms")
	flagSet.Float64Var(&config.DisconnectRate, "disconnect-rate", config.DisconnectRate, "per-second disconnect probability")
	flagSet.Float64Var(&config.ReconnectRate, "reconnect-rate", config.ReconnectRate, "per-second reconnect probability")
	flagSet.Float64Var(&config.ZipfS, "zipf", config.ZipfS, "Zipf parameter for contact popularity (> 1)")
	debug := flagSet.Bool("debug", false, "verbose logging")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if config.JWTSecret == "" {
		return errors.New("a JWT secret is required (--jwt-secret or JWT_SECRET)")
	}

	logger, err := utils.NewLogger(*debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
	defer cancel()

	sim := simulator.NewEnhancedSimulator(config, logger)
	if err := sim.Run(ctx); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	m := sim.GetMetrics()
	logger.Info("simulation completed",
		zap.Int("users", m.TotalUsers),
		zap.Int64("requests", m.TotalRequests),
		zap.Int64("failed", m.ErrorCount),
		zap.Duration("avgLatency", m.AverageLatency),
		zap.Int("messages", m.TotalMessages),
		zap.Int("rejected", m.RejectedMessages),
		zap.Int("recalls", m.Recalls),
		zap.Int("reads", m.Reads),
		zap.Int("events", m.EventsReceived))
	return nil
}
