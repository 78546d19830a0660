package rsm

import (
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	logging "github.com/op/go-logging"
)

var logger = logging.MustGetLogger("rsm")

// noopStatter is the zero-value statsd.Statter so hosts can be built
// without a live statsd daemon; cmd/chronicled and tests rely on this
// default. go-statsd-client does not ship a no-op implementation itself.
type noopStatter struct{}

func (noopStatter) Inc(string, int64, float32) error                 { return nil }
func (noopStatter) Dec(string, int64, float32) error                 { return nil }
func (noopStatter) Gauge(string, int64, float32) error               { return nil }
func (noopStatter) GaugeDelta(string, int64, float32) error          { return nil }
func (noopStatter) Timing(string, int64, float32) error              { return nil }
func (noopStatter) TimingDuration(string, time.Duration, float32) error { return nil }
func (noopStatter) Set(string, string, float32) error                { return nil }
func (noopStatter) SetInt(string, int64, float32) error              { return nil }
func (noopStatter) Raw(string, string, float32) error                { return nil }
func (noopStatter) SetPrefix(string)                                 {}
func (noopStatter) Close() error                                     { return nil }

func (h *Host) statsInc(stat string, value int64) {
	if err := h.stats.Inc("host."+stat, value, 1.0); err != nil {
		logger.Debug("stats inc %s failed: %v", stat, err)
	}
}

func (h *Host) statsTiming(stat string, since time.Time) {
	delta := time.Since(since) / time.Millisecond
	if err := h.stats.Timing("host."+stat, int64(delta), 1.0); err != nil {
		logger.Debug("stats timing %s failed: %v", stat, err)
	}
}
