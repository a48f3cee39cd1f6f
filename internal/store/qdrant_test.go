package store

import (
	"testing"
	"time"
)

func Test_NextPointID(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1_760_000_000_000)
	base := uint64(now.UnixMilli()) << qdrantIDRandBits

	tests := []struct {
		name string
		last uint64
		draw uint32
		want uint64
	}{
		{name: "fresh millisecond keeps random bits", last: 0, draw: 7, want: base | 7},
		{name: "draw is masked to the random bits", last: 0, draw: 1<<qdrantIDRandBits | 3, want: base | 3},
		{name: "clock behind last id", last: base + 900, draw: 1, want: base + 901},
		{name: "same candidate as last id", last: base | 5, draw: 5, want: base | 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := nextPointID(tc.last, now, tc.draw); got != tc.want {
				t.Errorf("nextPointID(%d, _, %d): want %d, got %d", tc.last, tc.draw, tc.want, got)
			}
		})
	}
}

func Test_NextPointID_StaysJSONSafe(t *testing.T) {
	t.Parallel()
	// Year 2200 with every random bit set.
	far := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := nextPointID(0, far, ^uint32(0)); got >= 1<<53 {
		t.Errorf("id %d does not fit a float64 mantissa", got)
	}
}

func Test_NextPointID_StrictlyIncreasing(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var last uint64
	for i := range 2000 {
		id := nextPointID(last, now, uint32(i*37))
		if id <= last {
			t.Fatalf("step %d: id %d not above %d", i, id, last)
		}
		last = id
	}
}
