package main

import (
	"context"
	"log"

	"github.com/neogan74/bakery/internal/app"
	"github.com/neogan74/bakery/internal/config"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.NewBuilder(cfg, version).Build(context.Background())
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
