package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(framesTotal.WithLabelValues(FrameNoFace))
	IncFrame(FrameNoFace)
	IncFrame(FrameNoFace)
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(FrameNoFace)); got != before+2 {
		t.Errorf("frames_total{no_face} = %v, want %v", got, before+2)
	}

	before = testutil.ToFloat64(classificationsTotal.WithLabelValues("ratio", "closed"))
	IncClassification("ratio", false)
	if got := testutil.ToFloat64(classificationsTotal.WithLabelValues("ratio", "closed")); got != before+1 {
		t.Errorf("classifications_total{ratio,closed} = %v, want %v", got, before+1)
	}

	ObserveTransition("pending_close", "sounding", 2)
	if got := testutil.ToFloat64(alarmState); got != 2 {
		t.Errorf("alarm_state = %v, want 2", got)
	}

	SetTracking(true)
	if got := testutil.ToFloat64(tracking); got != 1 {
		t.Errorf("tracking = %v, want 1", got)
	}
	SetTracking(false)
	if got := testutil.ToFloat64(tracking); got != 0 {
		t.Errorf("tracking = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	Init()
	IncSinkError("start")
	IncHookRun(true)
	ObserveDetect(20 * time.Millisecond)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{
		"eyeguard_alarm_sink_errors_total",
		"eyeguard_hook_runs_total",
		"eyeguard_detect_latency_seconds",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
