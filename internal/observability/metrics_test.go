package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrame("client", "in")
	RecordDiscard("client", "unexpected")
	SetInflight(3)
	RecordHandlerError("unknown_key")
	RecordSubscriptionDrop("drop_oldest")
	RecordHTTPRequest("framelinkd", "GET", "/health", 200, 12*time.Millisecond)
}
