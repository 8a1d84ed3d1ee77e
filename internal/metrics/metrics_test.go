package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestHandler(t *testing.T) {
	RecordInterception("pass", "", 2*time.Millisecond)
	RecordResolve("2captcha", "solved", 8*time.Second)
	SolvesInFlight.Set(0)

	body := scrape(t)
	expectedMetrics := []string{
		"captchagate_interceptions_total",
		"captchagate_interception_duration_seconds",
		"captchagate_resolves_total",
		"captchagate_solves_in_flight",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.24")

	body := scrape(t)
	if !strings.Contains(body, "captchagate_build_info") {
		t.Error("Expected captchagate_build_info metric")
	}
	if !strings.Contains(body, `version="1.0.0"`) {
		t.Error("Expected version label in build_info")
	}
}

func TestRecordInterception(t *testing.T) {
	before := testutil.ToFloat64(InterceptionsTotal.WithLabelValues("reject", "AttemptLimitExceeded"))
	RecordInterception("reject", "AttemptLimitExceeded", time.Millisecond)
	after := testutil.ToFloat64(InterceptionsTotal.WithLabelValues("reject", "AttemptLimitExceeded"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordChallengeDetected(t *testing.T) {
	before := testutil.ToFloat64(ChallengesDetected)
	RecordChallengeDetected()
	if got := testutil.ToFloat64(ChallengesDetected) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}

func TestStartMemoryCollector(t *testing.T) {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		StartMemoryCollector(5*time.Millisecond, stopCh)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stopCh)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartMemoryCollector did not stop")
	}

	if testutil.ToFloat64(GoroutineCount) <= 0 {
		t.Error("Expected goroutine gauge to be set")
	}
}
