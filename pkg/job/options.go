package job

import (
	"fmt"
	"math"
	"time"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// Polling bounds.
const (
	MinInitialDelaySec = 1.0
	MinDelaySec        = 1.0
	MinMaxRetries      = 2

	DefaultInitialDelaySec = 2.0
	DefaultDelaySec        = 1.5
	DefaultMaxRetries      = 80
)

// PollingOptions controls the polling loop. Delays are in seconds and may be
// fractional; they are handed to the Clock unconverted.
type PollingOptions struct {
	InitialDelaySec float64 `json:"initial_delay_sec" yaml:"initial_delay_sec" mapstructure:"initial_delay_sec"`
	DelaySec        float64 `json:"delay_sec" yaml:"delay_sec" mapstructure:"delay_sec"`
	MaxRetries      int     `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// DefaultPollingOptions returns {2, 1.5, 80}.
func DefaultPollingOptions() PollingOptions {
	return PollingOptions{
		InitialDelaySec: DefaultInitialDelaySec,
		DelaySec:        DefaultDelaySec,
		MaxRetries:      DefaultMaxRetries,
	}
}

// NewPollingOptions validates and returns polling options. Out-of-range
// values are rejected, never clamped.
func NewPollingOptions(initialDelaySec, delaySec float64, maxRetries int) (PollingOptions, error) {
	o := PollingOptions{InitialDelaySec: initialDelaySec, DelaySec: delaySec, MaxRetries: maxRetries}
	if err := o.Validate(); err != nil {
		return PollingOptions{}, err
	}
	return o, nil
}

// Validate checks the minimums.
func (o PollingOptions) Validate() error {
	if math.IsNaN(o.InitialDelaySec) || math.IsInf(o.InitialDelaySec, 0) || o.InitialDelaySec < MinInitialDelaySec {
		return &sdkerr.ConfigurationError{
			Field:   "InitialDelaySec",
			Message: fmt.Sprintf("must be at least %g seconds, got %g", MinInitialDelaySec, o.InitialDelaySec),
		}
	}
	if math.IsNaN(o.DelaySec) || math.IsInf(o.DelaySec, 0) || o.DelaySec < MinDelaySec {
		return &sdkerr.ConfigurationError{
			Field:   "DelaySec",
			Message: fmt.Sprintf("must be at least %g seconds, got %g", MinDelaySec, o.DelaySec),
		}
	}
	if o.MaxRetries < MinMaxRetries {
		return &sdkerr.ConfigurationError{
			Field:   "MaxRetries",
			Message: fmt.Sprintf("must be at least %d, got %d", MinMaxRetries, o.MaxRetries),
		}
	}
	return nil
}

// IsZero reports unset options.
func (o PollingOptions) IsZero() bool {
	return o == PollingOptions{}
}

// MaxWait is the worst-case time spent waiting before giving up:
// InitialDelaySec + (MaxRetries-1) * DelaySec. Request latency is not
// included. There is no separate wall-clock timeout.
func (o PollingOptions) MaxWait() time.Duration {
	secs := o.InitialDelaySec + float64(o.MaxRetries-1)*o.DelaySec
	return time.Duration(secs * float64(time.Second))
}
