package app

import (
	"fmt"
	"strings"

	"remindbot/internal/storage"
)

// mapStorageConfig converts the storage section. Unlike admin or pprof there
// is no disabled state: reminders must survive restarts, so a config that
// cannot produce a working store is a startup error.
func mapStorageConfig(cfg *Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, fmt.Errorf("storage: config required")
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, nil
	case "", "sqlite", "sqlite3":
		if driver == "" {
			driver = "sqlite"
		}
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
