package app

import (
	"fmt"
	"strings"

	"remindbot/internal/users"
)

// mapUserSettings converts the access-control section. Mode typos are
// rejected here because the service would otherwise quietly fall back to
// blocklist, which is the permissive direction.
func mapUserSettings(cfg *Config) (users.Settings, error) {
	var out users.Settings
	if cfg == nil {
		return out, nil
	}
	uc := cfg.Users

	mode := users.Mode(strings.ToLower(strings.TrimSpace(uc.Mode)))
	switch mode {
	case "", users.ModeBlocklist, users.ModeWhitelist:
		out.Mode = mode
	default:
		return out, fmt.Errorf("users.mode: unknown %q (want blocklist or whitelist)", uc.Mode)
	}

	if uc.RateLimit.MaxRequests < 0 {
		return out, fmt.Errorf("users.rate_limit.max_requests must be >= 0")
	}
	out.RateLimit = uc.RateLimit.MaxRequests

	var err error
	out.RateWindow, err = parseDurationOrDefault("users.rate_limit.window", uc.RateLimit.Window, 0)
	if err != nil {
		return out, err
	}
	return out, nil
}
