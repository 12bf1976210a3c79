package app

import (
	"fmt"
	"net"
	"strings"

	"remindbot/internal/admin"
)

// mapAdminConfig validates and converts the admin API section. It never
// starts the server.
func mapAdminConfig(cfg *Config) (admin.Config, error) {
	var out admin.Config
	if cfg == nil {
		return out, nil
	}
	ac := cfg.Admin

	out.Enabled = ac.Enabled
	out.Addr = strings.TrimSpace(ac.Addr)
	out.Username = strings.TrimSpace(ac.Username)
	out.Password = ac.Password

	var err error
	out.TokenTTL, err = parseDurationOrDefault("admin.token_ttl", ac.TokenTTL, 0)
	if err != nil {
		return out, err
	}

	if out.Addr != "" {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return out, fmt.Errorf("admin.addr: invalid %q (expected host:port): %w", out.Addr, err)
		}
	}
	if out.Enabled && strings.TrimSpace(out.Password) == "" {
		return out, fmt.Errorf("admin.password is required when admin.enabled=true")
	}
	return out, nil
}
