package app

import (
	"fmt"
	"time"

	"remindbot/internal/dispatch"
)

// mapDispatchConfig applies the documented dispatch defaults and converts
// durations. In this section zero always means "use the default"; the
// explicit opt-outs (retry_max, breaker.threshold) are negative.
func mapDispatchConfig(cfg *Config) (dispatch.Config, error) {
	out := dispatch.Config{
		Workers:          2,
		QueueSize:        512,
		RatePerSec:       25,
		SendTimeout:      10 * time.Second,
		RetryMax:         3,
		RetryBase:        500 * time.Millisecond,
		RetryMaxDelay:    10 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
	if cfg == nil {
		return out, nil
	}
	dc := cfg.Dispatch

	if dc.Workers < 0 {
		return out, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if dc.QueueSize < 0 {
		return out, fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	if dc.RatePerSec < 0 {
		return out, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	if dc.Workers != 0 {
		out.Workers = dc.Workers
	}
	if dc.QueueSize != 0 {
		out.QueueSize = dc.QueueSize
	}
	if dc.RatePerSec != 0 {
		out.RatePerSec = dc.RatePerSec
	}
	if dc.RetryMax != 0 {
		out.RetryMax = dc.RetryMax
	}
	if dc.Breaker.Threshold != 0 {
		out.BreakerThreshold = dc.Breaker.Threshold
	}

	var err error
	out.SendTimeout, err = parseDurationOrDefault("dispatch.send_timeout", dc.SendTimeout, out.SendTimeout)
	if err != nil {
		return out, err
	}
	out.RetryBase, err = parseDurationOrDefault("dispatch.retry_base", dc.RetryBase, out.RetryBase)
	if err != nil {
		return out, err
	}
	out.RetryMaxDelay, err = parseDurationOrDefault("dispatch.retry_max_delay", dc.RetryMaxDelay, out.RetryMaxDelay)
	if err != nil {
		return out, err
	}
	out.BreakerCooldown, err = parseDurationOrDefault("dispatch.breaker.cooldown", dc.Breaker.Cooldown, out.BreakerCooldown)
	if err != nil {
		return out, err
	}
	return out, nil
}
