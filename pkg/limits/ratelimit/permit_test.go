package ratelimit

import (
	"testing"
)

func TestPermit_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		in   permit
	}{
		{name: "zero", in: permit{}},
		{name: "max expiry", in: permit{collision: 0, expiry: expiryMask}},
		{name: "positive collision", in: permit{collision: 511, expiry: 12345}},
		{name: "negative collision", in: permit{collision: -512, expiry: 67890}},
		{name: "minus one", in: permit{collision: -1, expiry: expiryMask - 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePermit(encodePermit(tt.in))
			if got != tt.in {
				t.Errorf("decode(encode(%+v)) = %+v", tt.in, got)
			}
		})
	}
}

func TestPermit_ExpiryDoesNotLeakIntoCollision(t *testing.T) {
	// An expiry wider than 54 bits is truncated rather than corrupting the
	// collision counter.
	word := encodePermit(permit{collision: 3, expiry: expiryPeriod + 7})
	got := decodePermit(word)
	if got.collision != 3 || got.expiry != 7 {
		t.Errorf("Expected {3 7}, got %+v", got)
	}
}

func TestCollisionFor(t *testing.T) {
	tests := []struct {
		ticket int64
		want   int16
	}{
		{ticket: 0, want: 0},
		{ticket: 1, want: 1},
		{ticket: 511, want: 511},
		{ticket: 512, want: -512},
		{ticket: 1023, want: -1},
		{ticket: 1024, want: 0},
		{ticket: -1, want: -1}, // wrapped ticket counter
	}

	for _, tt := range tests {
		if got := collisionFor(tt.ticket); got != tt.want {
			t.Errorf("collisionFor(%d) = %d, want %d", tt.ticket, got, tt.want)
		}
	}
}

func TestExpiryDiff(t *testing.T) {
	tests := []struct {
		name     string
		newer    uint64
		older    uint64
		wantDiff int64
	}{
		{name: "ahead", newer: 200, older: 100, wantDiff: 100},
		{name: "behind", newer: 100, older: 200, wantDiff: -100},
		{name: "ahead across wrap", newer: 5, older: expiryPeriod - 5, wantDiff: 10},
		{name: "behind across wrap", newer: expiryPeriod - 5, older: 5, wantDiff: -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expiryDiff(tt.newer, tt.older); got != tt.wantDiff {
				t.Errorf("expiryDiff(%d, %d) = %d, want %d", tt.newer, tt.older, got, tt.wantDiff)
			}
		})
	}
}
