package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 502: "502"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d)=%q, want %q", n, got, want)
		}
	}
}

func TestRoutePatternLowCardinality(t *testing.T) {
	r := NewMux(&mockService{})
	for _, p := range []string{"/load/1", "/load/2", "/load/17"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, p, nil))
	}
	// All three requests must collapse into the /load/{index} pattern.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `path="/load/{index}"`) {
		t.Fatal("expected route pattern label in metrics output")
	}
	if strings.Contains(body, `path="/load/17"`) {
		t.Fatal("raw path leaked into metrics labels")
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	w := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: w, status: 200}
	sr.WriteHeader(http.StatusConflict)
	if sr.status != http.StatusConflict || w.Code != http.StatusConflict {
		t.Fatalf("status=%d recorder=%d", sr.status, w.Code)
	}
}
