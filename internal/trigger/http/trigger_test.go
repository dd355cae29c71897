package http

import "testing"

func TestMuxPatternStripsTrailingWildcard(t *testing.T) {
	cases := map[string]string{
		"/...":     "",
		"/foo/...": "/foo",
		"/foo":     "/foo",
		"/":        "/",
	}
	for route, want := range cases {
		if got := muxPattern(route); got != want {
			t.Errorf("muxPattern(%q) = %q, want %q", route, got, want)
		}
	}
}

func TestLimiterForDisabledByDefault(t *testing.T) {
	trig := New(Options{})
	if l := trig.limiterFor("comp-a"); l != nil {
		t.Fatalf("expected a nil limiter when MaxRequestsPerSec is unset, got %v", l)
	}
}

func TestLimiterForIsPerComponentAndReused(t *testing.T) {
	trig := New(Options{MaxRequestsPerSec: 10, RateLimitBurst: 2})

	a1 := trig.limiterFor("comp-a")
	a2 := trig.limiterFor("comp-a")
	b1 := trig.limiterFor("comp-b")

	if a1 == nil {
		t.Fatalf("expected a real limiter when MaxRequestsPerSec is set")
	}
	if a1 != a2 {
		t.Fatalf("expected the same limiter instance to be reused for the same component id")
	}
	if a1 == b1 {
		t.Fatalf("expected distinct limiters for distinct component ids")
	}
}

func TestLimiterForRespectsBurstAndRate(t *testing.T) {
	trig := New(Options{MaxRequestsPerSec: 1, RateLimitBurst: 2})
	l := trig.limiterFor("comp-a")

	if !l.Allow() {
		t.Fatalf("expected the first call within burst to be allowed")
	}
	if !l.Allow() {
		t.Fatalf("expected the second call within burst to be allowed")
	}
	if l.Allow() {
		t.Fatalf("expected a third immediate call to exceed the burst of 2 and be denied")
	}
}
