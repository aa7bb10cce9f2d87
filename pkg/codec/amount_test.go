package codec

import "testing"

func TestDecompressAmount(t *testing.T) {
	cases := []struct {
		x    uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 10},
		{9, 100_000_000},
		{10, 1_000_000_000},
	}
	for _, c := range cases {
		if got := DecompressAmount(c.x); got != c.want {
			t.Errorf("DecompressAmount(%d) = %d, want %d", c.x, got, c.want)
		}
	}
}
