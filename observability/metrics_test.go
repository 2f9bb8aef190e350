package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"floorvault/core/events"
	nativecommon "floorvault/native/common"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, "success", Outcome(nil))
	require.Equal(t, "paused", Outcome(nativecommon.ErrModulePaused))
	require.Equal(t, "unauthorized", Outcome(&nativecommon.UnauthorizedError{}))
	require.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestEngineMetrics(t *testing.T) {
	m := Engines()
	before := testutil.ToFloat64(m.operations.WithLabelValues("listings", "fill", "paused"))
	m.Observe("listings", "fill", time.Millisecond, nativecommon.ErrModulePaused)
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("listings", "fill", "paused")))

	m.RecordCollection("0xABC", 3, new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.vaulted.WithLabelValues("0xabc")))
	require.Equal(t, 3e18, testutil.ToFloat64(m.supply.WithLabelValues("0xabc")))

	var nilMetrics *EngineMetrics
	nilMetrics.Observe("x", "y", 0, nil)
}

func TestHTTPMetrics(t *testing.T) {
	m := HTTP()
	before := testutil.ToFloat64(m.errors.WithLabelValues("/v1/listings", "POST", "409"))
	m.Observe("/v1/listings", "POST", 409, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("/v1/listings", "POST", "409")))

	m.RecordThrottle("")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")), 1.0)
}

func TestEventMetricsCountCommittedTypes(t *testing.T) {
	m := Events()
	evt := events.ListingsCancelled{}
	label := evt.EventType()
	before := testutil.ToFloat64(m.committed.WithLabelValues(label))
	m.Emit(evt)
	m.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(m.committed.WithLabelValues(label)))
}
