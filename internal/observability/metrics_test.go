package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/danmuck/wpanctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("wpan0", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrame("in")
	RecordFramingError("garbage", 4)
	RecordNCPReset("RESET_POWER_ON", true)
	RecordTask("join", "Ok")
	RecordCommand("CMD_PROP_VALUE_GET", "Ok", 3*time.Millisecond)
}

func TestCRCTextCounterCounts(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(crcASCII)
	RecordCRCText()
	RecordCRCText()
	assert.Equal(t, before+2, testutil.ToFloat64(crcASCII))
}

func TestStateGaugeTracksOnlyCurrentState(t *testing.T) {
	testlog.Start(t)
	RecordNCPState("offline")
	RecordNCPState("associated")
	assert.Equal(t, 1.0, testutil.ToFloat64(ncpState.WithLabelValues("associated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ncpState.WithLabelValues("offline")))
}
