package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("recv-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrameSent("send-a", "think", 4120)
	RecordFrameReceived("recv-a", "think", 4120)
	RecordDecodeError("recv-a", "codec", "integrity")
	RecordFrameDropped("recv-a", "space_hash")
}

func TestDecodeErrorsCountByKind(t *testing.T) {
	before := testutil.ToFloat64(decodeErrors.WithLabelValues("recv-b", "codec", "truncated_input"))
	RecordDecodeError("recv-b", "codec", "truncated_input")
	RecordDecodeError("recv-b", "codec", "truncated_input")
	after := testutil.ToFloat64(decodeErrors.WithLabelValues("recv-b", "codec", "truncated_input"))
	if after-before != 2 {
		t.Fatalf("expected 2 increments, got %v", after-before)
	}
}
