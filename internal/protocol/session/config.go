package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ResetBackoffConfig bounds how fast the driver re-initializes an NCP that
// keeps resetting on its own.
type ResetBackoffConfig struct {
	// Threshold is the number of resets inside the window that cost nothing.
	Threshold int
	// DecayAfter is the quiet period that forgets one counted reset.
	DecayAfter time.Duration
	Backoff    BackoffConfig
}

// Config defines per-connection timeouts.
type Config struct {
	SendTimeout            time.Duration
	ResponseTimeout        time.Duration
	TickleTimeout          time.Duration
	DeepSleepTickleTimeout time.Duration
	JoinTimeout            time.Duration
	FormTimeout            time.Duration
	ScanTimeout            time.Duration
	AutoDeepSleepTimeout   time.Duration
	FailureThreshold       int
	ResetBackoff           ResetBackoffConfig
}

func DefaultConfig() Config {
	return Config{
		SendTimeout:            2 * time.Second,
		ResponseTimeout:        5 * time.Second,
		TickleTimeout:          60 * time.Second,
		DeepSleepTickleTimeout: time.Hour,
		JoinTimeout:            30 * time.Second,
		FormTimeout:            60 * time.Second,
		ScanTimeout:            15 * time.Second,
		AutoDeepSleepTimeout:   10 * time.Second,
		FailureThreshold:       3,
		ResetBackoff: ResetBackoffConfig{
			Threshold:  3,
			DecayAfter: 30 * time.Second,
			Backoff: BackoffConfig{
				InitialDelay: time.Second,
				Multiplier:   2.0,
				MaxDelay:     5 * time.Minute,
				Jitter:       false,
			},
		},
	}
}

// Normalize fills zero fields from DefaultConfig.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.TickleTimeout <= 0 {
		c.TickleTimeout = d.TickleTimeout
	}
	if c.DeepSleepTickleTimeout <= 0 {
		c.DeepSleepTickleTimeout = d.DeepSleepTickleTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	if c.FormTimeout <= 0 {
		c.FormTimeout = d.FormTimeout
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = d.ScanTimeout
	}
	if c.AutoDeepSleepTimeout <= 0 {
		c.AutoDeepSleepTimeout = d.AutoDeepSleepTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetBackoff.Threshold <= 0 {
		c.ResetBackoff.Threshold = d.ResetBackoff.Threshold
	}
	if c.ResetBackoff.DecayAfter <= 0 {
		c.ResetBackoff.DecayAfter = d.ResetBackoff.DecayAfter
	}
	if c.ResetBackoff.Backoff.InitialDelay <= 0 {
		c.ResetBackoff.Backoff = d.ResetBackoff.Backoff
	}
	return c
}
