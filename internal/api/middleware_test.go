package api

import "testing"

func TestIPLimitersIsolatePerClient(t *testing.T) {
	l := newIPLimiters(1, 1)

	if !l.get("10.0.0.1").Allow() {
		t.Fatalf("first request denied")
	}
	if l.get("10.0.0.1").Allow() {
		t.Errorf("burst of 1 allowed a second immediate request")
	}
	// A different client has its own bucket.
	if !l.get("10.0.0.2").Allow() {
		t.Errorf("second client throttled by first client's bucket")
	}
}

func TestIPLimitersReuseBucket(t *testing.T) {
	l := newIPLimiters(1, 1)
	if l.get("10.0.0.1") != l.get("10.0.0.1") {
		t.Fatalf("same client handed two buckets")
	}
	if l.seen["10.0.0.1"].lastSeen.IsZero() {
		t.Errorf("lastSeen not stamped")
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"abc", "abc"},
		{"12345678", "12345678"},
		{"123456789abcdef", "12345678"},
	}
	for _, tt := range tests {
		if got := shortID(tt.in); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
