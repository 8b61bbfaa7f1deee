package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.IndicatorComputationsTotal == nil {
		t.Error("IndicatorComputationsTotal is nil")
	}
	if m.IndicatorDuration == nil {
		t.Error("IndicatorDuration is nil")
	}
	if m.CacheLookupsTotal == nil {
		t.Error("CacheLookupsTotal is nil")
	}
	if m.CacheStoreErrorsTotal == nil {
		t.Error("CacheStoreErrorsTotal is nil")
	}
	if m.ActiveSubscriptions == nil {
		t.Error("ActiveSubscriptions is nil")
	}
	if m.AnalysisRequestsTotal == nil {
		t.Error("AnalysisRequestsTotal is nil")
	}
	if m.ExternalAPIRequestsTotal == nil {
		t.Error("ExternalAPIRequestsTotal is nil")
	}
	if m.DBQueryTotal == nil {
		t.Error("DBQueryTotal is nil")
	}
	if m.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
}

func TestRecordIndicatorComputation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordIndicatorComputation("1h", "success", time.Millisecond)
	m.RecordIndicatorComputation("1h", "success", 2*time.Millisecond)
	m.RecordIndicatorComputation("1d", "insufficient_data", time.Millisecond)

	if got := testutil.ToFloat64(m.IndicatorComputationsTotal.WithLabelValues("1h", "success")); got != 2 {
		t.Errorf("Expected 2 successful 1h computations, got %f", got)
	}
	if got := testutil.ToFloat64(m.IndicatorComputationsTotal.WithLabelValues("1d", "insufficient_data")); got != 1 {
		t.Errorf("Expected 1 insufficient 1d computation, got %f", got)
	}
}

func TestRecordInsufficientAndMalformed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordInsufficientData("4h")
	m.RecordMalformedInput("4h")
	m.RecordMalformedInput("4h")

	if got := testutil.ToFloat64(m.InsufficientDataTotal.WithLabelValues("4h")); got != 1 {
		t.Errorf("Expected insufficient count 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.MalformedInputTotal.WithLabelValues("4h")); got != 2 {
		t.Errorf("Expected malformed count 2, got %f", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheLookup("redis", CacheResultHit)
	m.RecordCacheLookup("redis", CacheResultHit)
	m.RecordCacheLookup("redis", CacheResultMiss)
	m.RecordCacheLookup("postgres", CacheResultError)
	m.RecordCacheStoreError("postgres", "load")

	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("redis", CacheResultHit)); got != 2 {
		t.Errorf("Expected 2 redis hits, got %f", got)
	}
	if got := testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("redis", CacheResultMiss)); got != 1 {
		t.Errorf("Expected 1 redis miss, got %f", got)
	}
	if got := testutil.ToFloat64(m.CacheStoreErrorsTotal.WithLabelValues("postgres", "load")); got != 1 {
		t.Errorf("Expected 1 postgres load error, got %f", got)
	}
}

func TestTrackerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetActiveSubscriptions(3)
	m.RecordTrackerPoll("1m", "success")
	m.RecordTrackerPoll("1m", "error")
	m.RecordStreamCandle("binance")

	if got := testutil.ToFloat64(m.ActiveSubscriptions); got != 3 {
		t.Errorf("Expected 3 active subscriptions, got %f", got)
	}
	if got := testutil.ToFloat64(m.TrackerPollsTotal.WithLabelValues("1m", "error")); got != 1 {
		t.Errorf("Expected 1 failed poll, got %f", got)
	}
	if got := testutil.ToFloat64(m.StreamCandlesTotal.WithLabelValues("binance")); got != 1 {
		t.Errorf("Expected 1 streamed candle, got %f", got)
	}
}

func TestRecordAnalysis(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAnalysisRequest("BTCUSDT")
	m.RecordAnalysisRequest("BTCUSDT")
	m.RecordAnalysisError("ETHUSDT", "llm")
	m.RecordCommentary("buy", 72)
	m.RecordAnalysisDuration("BTCUSDT", "success", time.Second)

	if got := testutil.ToFloat64(m.AnalysisRequestsTotal.WithLabelValues("BTCUSDT")); got != 2 {
		t.Errorf("Expected 2 BTCUSDT requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.AnalysisErrorsTotal.WithLabelValues("ETHUSDT", "llm")); got != 1 {
		t.Errorf("Expected 1 ETHUSDT llm error, got %f", got)
	}
	if got := testutil.ToFloat64(m.CommentarySignals.WithLabelValues("buy")); got != 1 {
		t.Errorf("Expected 1 buy signal, got %f", got)
	}
}

func TestRecordExternalAPI(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordExternalAPIRequest("binance", "klines")
	m.RecordExternalAPIRequest("binance", "klines")
	m.RecordExternalAPIError("coincap", "candles", "http_status")

	if got := testutil.ToFloat64(m.ExternalAPIRequestsTotal.WithLabelValues("binance", "klines")); got != 2 {
		t.Errorf("Expected binance klines count 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.ExternalAPIErrorsTotal.WithLabelValues("coincap", "candles", "http_status")); got != 1 {
		t.Errorf("Expected coincap error count 1, got %f", got)
	}
}

func TestRecordDBQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDBQuery("select", "indicator_snapshots", 10*time.Millisecond)
	m.RecordDBQuery("upsert", "indicator_snapshots", 5*time.Millisecond)
	m.RecordDBError("select", "analyses")

	if got := testutil.ToFloat64(m.DBQueryTotal.WithLabelValues("select", "indicator_snapshots")); got != 1 {
		t.Errorf("Expected select count 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.DBErrorsTotal.WithLabelValues("select", "analyses")); got != 1 {
		t.Errorf("Expected select error count 1, got %f", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordHTTPRequest("GET", "/api/health", "200", 10*time.Millisecond, 256)
	m.RecordHTTPRequest("GET", "/api/indicators", "422", 50*time.Millisecond, 128)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200")); got != 1 {
		t.Errorf("Expected GET /api/health 200 count 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/indicators", "422")); got != 1 {
		t.Errorf("Expected GET /api/indicators 422 count 1, got %f", got)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetCircuitBreakerState("bedrock", 0)
	m.SetCircuitBreakerState("binance", 2)
	m.RecordCircuitBreakerTrip("binance")
	m.RecordCircuitBreakerTrip("binance")

	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("binance")); got != 2 {
		t.Errorf("Expected binance state 2 (open), got %f", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerTrips.WithLabelValues("binance")); got != 2 {
		t.Errorf("Expected 2 binance trips, got %f", got)
	}
}

func TestTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	timer := m.NewTimer()
	if timer == nil {
		t.Fatal("NewTimer returned nil")
	}

	time.Sleep(10 * time.Millisecond)

	if d := timer.Duration(); d < 10*time.Millisecond {
		t.Errorf("Expected duration to be at least 10ms, got %v", d)
	}

	timer.ObserveIndicators("1h", "success")
	if got := testutil.ToFloat64(m.IndicatorComputationsTotal.WithLabelValues("1h", "success")); got != 1 {
		t.Errorf("Expected ObserveIndicators to count the computation, got %f", got)
	}

	m.NewTimer().ObserveAnalysis("BTCUSDT", "success")
	m.NewTimer().ObserveExternalAPI("binance", "klines")
	m.NewTimer().ObserveDB("select", "analyses")
}

func TestGetMetrics_Singleton(t *testing.T) {
	original := globalMetrics
	defer func() { globalMetrics = original }()

	globalMetrics = NewMetrics(prometheus.NewRegistry())

	m1 := GetMetrics()
	if m1 == nil {
		t.Fatal("GetMetrics returned nil")
	}
	if m2 := GetMetrics(); m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}
