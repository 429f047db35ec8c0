package label

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	cases := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 5, 5}, 0},
		{"touching edges", Box{0, 0, 10, 10}, Box{10, 0, 10, 10}, 0},
		{"half overlap", Box{0, 0, 10, 10}, Box{5, 0, 10, 10}, 50.0 / 150.0},
		{"contained", Box{0, 0, 10, 10}, Box{2, 2, 5, 5}, 25.0 / 100.0},
		{"both empty", Box{0, 0, 0, 0}, Box{5, 5, 0, 0}, 0},
		{"one empty", Box{0, 0, 0, 0}, Box{0, 0, 10, 10}, 0},
	}
	for _, c := range cases {
		got := IoU(c.a, c.b)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("%s: IoU=%f, want %f", c.name, got, c.want)
		}
		// IoU is symmetric by construction.
		if rev := IoU(c.b, c.a); math.Abs(rev-got) > 1e-9 {
			t.Fatalf("%s: IoU not symmetric: %f vs %f", c.name, got, rev)
		}
	}
}

func TestIntersection(t *testing.T) {
	a := Box{0, 0, 10, 10}
	b := Box{5, 5, 10, 10}
	if got := Intersection(a, b); got != 25 {
		t.Fatalf("Intersection=%d, want 25", got)
	}
	if got := Intersection(a, Box{50, 50, 1, 1}); got != 0 {
		t.Fatalf("disjoint Intersection=%d, want 0", got)
	}
}
