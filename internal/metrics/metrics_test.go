package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != "ok" {
		t.Errorf("Outcome(nil) = %q", got)
	}
	if got := Outcome(errors.New("x")); got != "error" {
		t.Errorf("Outcome(err) = %q", got)
	}
}

func TestCounters(t *testing.T) {
	c := ToolCalls.WithLabelValues("metricsTestTool", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("tool_calls_total = %v, want %v", got, before+1)
	}

	TurnDuration.WithLabelValues("metrics-test").Observe(0.3)
	if n := testutil.CollectAndCount(TurnDuration, "huddle_turn_duration_seconds"); n == 0 {
		t.Error("turn_duration_seconds not collected")
	}
}
