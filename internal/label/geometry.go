package label

// Box is an axis-aligned bounding box in image pixel coordinates.
type Box struct {
	X int `json:"x_bbox" db:"x_bbox"`
	Y int `json:"y_bbox" db:"y_bbox"`
	W int `json:"w_bbox" db:"w_bbox"`
	H int `json:"h_bbox" db:"h_bbox"`
}

// Area returns the box area, treating negative dimensions as empty.
func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Intersection returns the overlap area of two boxes.
func Intersection(a, b Box) int {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

// IoU computes intersection-over-union of two boxes. A union of zero (both
// boxes degenerate) yields 0 rather than a division by zero.
func IoU(a, b Box) float64 {
	inter := Intersection(a, b)
	union := a.Area() + b.Area() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
