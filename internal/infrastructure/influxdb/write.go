package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/relay-core/internal/binding"
)

// Measurements.
const (
	MeasurementDispatch = "dispatch"
	MeasurementTrigger  = "trigger"
	MeasurementReload   = "reload"
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveDispatch records one remote call: which kind of command went to
// which target, how long it took and whether it failed. It never blocks.
//
// Tags: kind, target, outcome. Fields: duration_ms.
func (c *Client) ObserveDispatch(kind binding.Kind, target string, elapsed time.Duration, err error) {
	c.WritePoint(MeasurementDispatch,
		map[string]string{
			"kind":    string(kind),
			"target":  target,
			"outcome": outcome(err),
		},
		map[string]any{
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		},
	)
}

// WriteTrigger records one binding activation.
//
// Tags: binding, source, shape, outcome. Fields: duration_ms.
func (c *Client) WriteTrigger(bindingName, source, shape string, elapsed time.Duration, err error) {
	c.WritePoint(MeasurementTrigger,
		map[string]string{
			"binding": bindingName,
			"source":  source,
			"shape":   shape,
			"outcome": outcome(err),
		},
		map[string]any{
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		},
	)
}

// WriteReload records a bindings table reload and its size.
func (c *Client) WriteReload(bindings int, err error) {
	c.WritePoint(MeasurementReload,
		map[string]string{"outcome": outcome(err)},
		map[string]any{"bindings": bindings},
	)
}

// WritePoint writes a custom point stamped now. Dropped when disconnected.
//
// Example:
//
//	client.WritePoint("variables",
//	    map[string]string{"backend": "sqlite"},
//	    map[string]any{"count": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
