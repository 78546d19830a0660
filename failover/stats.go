package failover

import (
	"time"
)

// noopStatter is the zero-value statsd.Statter, letting a Coordinator run
// without a live statsd daemon.
type noopStatter struct{}

func (noopStatter) Inc(string, int64, float32) error                    { return nil }
func (noopStatter) Dec(string, int64, float32) error                    { return nil }
func (noopStatter) Gauge(string, int64, float32) error                  { return nil }
func (noopStatter) GaugeDelta(string, int64, float32) error             { return nil }
func (noopStatter) Timing(string, int64, float32) error                 { return nil }
func (noopStatter) TimingDuration(string, time.Duration, float32) error { return nil }
func (noopStatter) Set(string, string, float32) error                   { return nil }
func (noopStatter) SetInt(string, int64, float32) error                 { return nil }
func (noopStatter) Raw(string, string, float32) error                   { return nil }
func (noopStatter) SetPrefix(string)                                    {}
func (noopStatter) Close() error                                        { return nil }

func (c *Coordinator) statsInc(stat string, value int64) {
	if err := c.stats.Inc("coordinator."+stat, value, 1.0); err != nil {
		logger.Debug("stats inc %s failed: %v", stat, err)
	}
}

func (c *Coordinator) statsTiming(stat string, since time.Time) {
	delta := time.Since(since) / time.Millisecond
	if err := c.stats.Timing("coordinator."+stat, int64(delta), 1.0); err != nil {
		logger.Debug("stats timing %s failed: %v", stat, err)
	}
}
