package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDroppedTotal_LabelsAreIndependent(t *testing.T) {
	before := testutil.ToFloat64(DroppedTotal.WithLabelValues(ReasonUnknownTarget))
	otherBefore := testutil.ToFloat64(DroppedTotal.WithLabelValues(ReasonRateLimited))

	DroppedTotal.WithLabelValues(ReasonUnknownTarget).Inc()

	if got := testutil.ToFloat64(DroppedTotal.WithLabelValues(ReasonUnknownTarget)); got != before+1 {
		t.Errorf("unknown_target = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(DroppedTotal.WithLabelValues(ReasonRateLimited)); got != otherBefore {
		t.Errorf("rate_limited changed to %v", got)
	}
}

func TestGauges_Set(t *testing.T) {
	Sessions.Set(3)
	Broadcasts.Set(1)
	Viewers.Set(2)

	if got := testutil.ToFloat64(Sessions); got != 3 {
		t.Errorf("Sessions = %v", got)
	}
	if got := testutil.ToFloat64(Broadcasts); got != 1 {
		t.Errorf("Broadcasts = %v", got)
	}
	if got := testutil.ToFloat64(Viewers); got != 2 {
		t.Errorf("Viewers = %v", got)
	}
}
