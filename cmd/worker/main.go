package main

import (
	"context"
	"flag"
	"log"
	"os"

	"Qless/internal/di"
	"Qless/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	// QLESS_* overrides may come from a local .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("env file: %v", err)
	}

	configPath := flag.String("config", "configs/worker.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s redis=%s queues=%v strategy=%s processes=%d",
		cfg.Environment, cfg.Redis.Addr, cfg.Worker.Queues, cfg.Worker.Strategy, cfg.Worker.Processes)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM; in-flight jobs are reported first.
	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
