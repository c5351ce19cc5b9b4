package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/authgate/authgate"
)

type fakeSource struct {
	snapshot authgate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderCounters(t *testing.T) {
	source := fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters: map[authgate.MetricID]uint64{
				authgate.MetricLoginSuccess:         7,
				authgate.MetricRefreshReuseDetected: 2,
			},
			Histograms: map[authgate.MetricID][]uint64{},
		},
		dropped: 3,
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authgate_login_success_total counter",
		"authgate_login_success_total 7",
		"authgate_refresh_reuse_detected_total 2",
		"authgate_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistogramIsCumulative(t *testing.T) {
	source := fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters: map[authgate.MetricID]uint64{authgate.MetricRefreshSuccess: 1},
			Histograms: map[authgate.MetricID][]uint64{
				authgate.MetricRefreshLatency: {1, 0, 2, 0, 0, 0, 0, 1},
			},
		},
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		`authgate_refresh_latency_seconds_bucket{le="0.005"} 1`,
		`authgate_refresh_latency_seconds_bucket{le="0.025"} 3`,
		`authgate_refresh_latency_seconds_bucket{le="+Inf"} 4`,
		"authgate_refresh_latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmptySource(t *testing.T) {
	source := fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters:   map[authgate.MetricID]uint64{},
			Histograms: map[authgate.MetricID][]uint64{},
		},
	}
	if out := NewPrometheusExporterFromSource(source).Render(); out != "" {
		t.Fatalf("expected empty render, got %q", out)
	}

	var nilExporter *PrometheusExporter
	if out := nilExporter.Render(); out != "" {
		t.Fatalf("nil exporter rendered %q", out)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	source := fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters:   map[authgate.MetricID]uint64{authgate.MetricLogout: 1},
			Histograms: map[authgate.MetricID][]uint64{},
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	NewPrometheusExporterFromSource(source).Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authgate_logout_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
