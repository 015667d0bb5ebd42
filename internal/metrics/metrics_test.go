package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTick(t *testing.T) {
	before := testutil.ToFloat64(TicksProcessed.WithLabelValues("TEST/USDT"))

	ObserveTick("TEST/USDT", time.Now().Add(-10*time.Millisecond))

	assert.Equal(t, before+1, testutil.ToFloat64(TicksProcessed.WithLabelValues("TEST/USDT")))
}

func TestRecordOrder(t *testing.T) {
	success := testutil.ToFloat64(OrdersTotal.WithLabelValues("BUY", "success"))
	failed := testutil.ToFloat64(OrdersTotal.WithLabelValues("BUY", "failed"))

	RecordOrder("BUY", nil)
	RecordOrder("BUY", errors.New("rejected"))
	RecordOrder("BUY", errors.New("rejected"))

	assert.Equal(t, success+1, testutil.ToFloat64(OrdersTotal.WithLabelValues("BUY", "success")))
	assert.Equal(t, failed+2, testutil.ToFloat64(OrdersTotal.WithLabelValues("BUY", "failed")))
}
