package persistence

import (
	"fmt"

	"github.com/neogan74/bakery/internal/logger"
)

// NewEngine creates a persistence engine based on configuration
func NewEngine(cfg Config, log logger.Logger) (Engine, error) {
	switch cfg.Type {
	case "memory":
		log.Info("Using in-memory audit store")
		return NewMemoryEngine(), nil
	case "badger":
		log.Info("Using BadgerDB audit store",
			logger.String("data_dir", cfg.DataDir),
			logger.Bool("sync_writes", cfg.SyncWrites))
		return NewBadgerEngine(cfg.DataDir, cfg.SyncWrites, log)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
}
