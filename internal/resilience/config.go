package resilience

import "time"

const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Remote OCR sits inside the capture cycle; trip quickly so the cycle
	// falls back to sentinel text instead of stalling on a dead server.
	OCRThreshold         = 3
	OCRResetTimeout      = 10 * time.Second
	OCRHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // appears in state-change logs
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // wait before a half-open trial
	HalfOpenSuccesses int           // trial successes needed to close
}

// DefaultConfig returns settings for the translation backend.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// OCRConfig returns aggressive settings for the remote OCR engine.
func OCRConfig() Config {
	return Config{
		Name:              "remote-ocr",
		Threshold:         OCRThreshold,
		ResetTimeout:      OCRResetTimeout,
		HalfOpenSuccesses: OCRHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
