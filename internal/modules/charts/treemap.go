package charts

import "math"

// Rect is an axis-aligned rectangle in canvas coordinates
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Squarify lays out values into bounds using the squarified treemap
// algorithm, returning one rectangle per value in input order. Values
// must be sorted in descending order for near-square tiles. Zero and
// negative values get zero-sized rectangles.
func Squarify(values []float64, bounds Rect) []Rect {
	rects := make([]Rect, len(values))

	var total float64
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 || bounds.W <= 0 || bounds.H <= 0 {
		return rects
	}

	// Scale values so their areas fill the bounds exactly
	scale := bounds.W * bounds.H / total
	areas := make([]float64, 0, len(values))
	indexes := make([]int, 0, len(values))
	for i, v := range values {
		if v > 0 {
			areas = append(areas, v*scale)
			indexes = append(indexes, i)
		}
	}

	free := bounds
	var row []float64
	rowStart := 0

	flush := func(end int) {
		laid := layoutRow(row, &free)
		for j, r := range laid {
			rects[indexes[rowStart+j]] = r
		}
		row = row[:0]
		rowStart = end
	}

	for i := 0; i < len(areas); i++ {
		side := math.Min(free.W, free.H)
		if len(row) == 0 || worstAspect(row, areas[i], side) <= worstAspect(row, 0, side) {
			row = append(row, areas[i])
			continue
		}
		flush(i)
		row = append(row, areas[i])
	}
	if len(row) > 0 {
		flush(len(areas))
	}

	return rects
}

// worstAspect returns the worst tile aspect ratio of row laid along a
// side of the given length, optionally with one extra area appended.
func worstAspect(row []float64, extra, side float64) float64 {
	sum := extra
	maxArea := extra
	minArea := extra
	if extra == 0 {
		minArea = math.Inf(1)
	}
	for _, a := range row {
		sum += a
		if a > maxArea {
			maxArea = a
		}
		if a < minArea {
			minArea = a
		}
	}
	if sum == 0 || side == 0 {
		return math.Inf(1)
	}

	s2 := side * side
	sum2 := sum * sum
	return math.Max(s2*maxArea/sum2, sum2/(s2*minArea))
}

// layoutRow places a row of areas as a strip along the shorter side of
// the free rectangle, shrinking it in place.
func layoutRow(row []float64, free *Rect) []Rect {
	var sum float64
	for _, a := range row {
		sum += a
	}

	rects := make([]Rect, len(row))

	if free.W >= free.H {
		// Vertical strip on the left edge
		w := sum / free.H
		y := free.Y
		for i, a := range row {
			h := a / w
			rects[i] = Rect{X: free.X, Y: y, W: w, H: h}
			y += h
		}
		free.X += w
		free.W -= w
	} else {
		// Horizontal strip along the top edge
		h := sum / free.W
		x := free.X
		for i, a := range row {
			w := a / h
			rects[i] = Rect{X: x, Y: free.Y, W: w, H: h}
			x += w
		}
		free.Y += h
		free.H -= h
	}

	return rects
}
