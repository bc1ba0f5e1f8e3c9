package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_Dedup(t *testing.T) {
	c := NewMetricsCollector()

	a := c.Counter("test_total", "help", "")
	b := c.Counter("test_total", "help", "")
	if a != b {
		t.Fatal("same name+labels must return the same counter")
	}

	labeled := c.Counter("test_total", "help", `kind="x"`)
	if labeled == a {
		t.Fatal("different labels must return a distinct counter")
	}
}

func TestHandler_Exposition(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("vidbot_test_total", "A test counter", "").Add(3)
	c.Gauge("vidbot_test_busy", "A test gauge", "").Set(1)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"# TYPE vidbot_test_total counter",
		"vidbot_test_total 3",
		"# TYPE vidbot_test_busy gauge",
		"vidbot_test_busy 1",
		"vidbot_uptime_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("unexpected content type %q", got)
	}
}
