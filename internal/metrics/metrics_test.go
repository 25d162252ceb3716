package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, stageRecordsTotal)
	require.NotNil(t, claimOutcomesTotal)
	require.NotNil(t, extractDurationSeconds)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveStage(t *testing.T) {
	Init()
	counter := stageRecordsTotal.WithLabelValues("normalize", "passed")
	before := testutil.ToFloat64(counter)
	ObserveStage("normalize", "passed", 3)
	ObserveStage("normalize", "passed", 0)
	require.InDelta(t, before+3, testutil.ToFloat64(counter), 1e-9)
}

func TestObserveClaimAndExtract(t *testing.T) {
	ObserveClaim("enrichment", "conflict")
	require.GreaterOrEqual(t, testutil.ToFloat64(claimOutcomesTotal.WithLabelValues("enrichment", "conflict")), 1.0)

	ObserveExtract("ok", 2*time.Second)
	require.Positive(t, testutil.CollectAndCount(extractDurationSeconds))
}

func TestObserveSearchSkipsEmpty(t *testing.T) {
	Init()
	counter := searchResultsTotal.WithLabelValues("static", "es")
	before := testutil.ToFloat64(counter)
	ObserveSearch("static", "es", 0)
	ObserveSearch("static", "es", 4)
	require.InDelta(t, before+4, testutil.ToFloat64(counter), 1e-9)

	ObserveRateLimitDelay("static", 1500*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaysSeconds))
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.InDelta(t, before+1, testutil.ToFloat64(activeWorkers), 1e-9)
	DecActiveWorkers()
}
