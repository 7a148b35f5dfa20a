package resilience

import "time"

// FromFetchConfig builds the fetch retry policy from configuration values.
// Non-positive values keep the defaults.
func FromFetchConfig(maxAttempts int, scheduleSecs []int, attemptTimeoutMins int) RetryConfig {
	cfg := DefaultRetryConfig()
	if len(scheduleSecs) > 0 {
		cfg.Schedule = make([]time.Duration, 0, len(scheduleSecs))
		for _, s := range scheduleSecs {
			cfg.Schedule = append(cfg.Schedule, time.Duration(s)*time.Second)
		}
		cfg.MaxAttempts = len(cfg.Schedule) + 1
	}
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if attemptTimeoutMins > 0 {
		cfg.AttemptTimeout = time.Duration(attemptTimeoutMins) * time.Minute
	}
	return cfg
}
