package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMetricsCountEngineOutcomes(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	ctx := context.Background()

	_ = env.engine.Login(ctx, "alice@example.com", "wrong")
	env.loginAndVerify(t, "alice@example.com", "secret1")

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("register counter = %d", snap.Counters[MetricRegisterSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("login failure counter = %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("login success counter = %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricOTPIssued] != 1 {
		t.Fatalf("otp issued counter = %d", snap.Counters[MetricOTPIssued])
	}
	if snap.Counters[MetricOTPSuccess] != 1 {
		t.Fatalf("otp success counter = %d", snap.Counters[MetricOTPSuccess])
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricRefreshLatency, 3*time.Millisecond)
	m.Observe(MetricRefreshLatency, 40*time.Millisecond)
	m.Observe(MetricRefreshLatency, time.Second)

	// only the refresh latency series records observations
	m.Observe(MetricLoginSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricRefreshLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected bucket layout: %v", buckets)
	}

	var total uint64
	for _, v := range buckets {
		total += v
	}
	if total != 3 {
		t.Fatalf("expected 3 observations, got %d", total)
	}
}

func TestMetricsBucketIndex(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{time.Millisecond, 0},
		{5 * time.Millisecond, 0},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{2 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricRefreshLatency, time.Millisecond)
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics must read zero")
	}
}

func TestRefreshReuseCounter(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.registerUser(t, "alice@example.com", "secret1")
	session := env.loginAndVerify(t, "alice@example.com", "secret1")
	ctx := context.Background()

	if _, err := env.engine.Refresh(ctx, session.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("refresh success counter = %d", snap.Counters[MetricRefreshSuccess])
	}
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("reuse counter = %d", snap.Counters[MetricRefreshReuseDetected])
	}
}
