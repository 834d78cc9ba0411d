package field

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a vertex in page-relative coordinates (0..1 on both axes).
type Point struct {
	X float64
	Y float64
}

// MarshalJSON encodes the point as the server's [x, y] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// Polygon is an ordered list of vertices.
type Polygon []Point

// BoundingBox is an axis-aligned rectangle.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundingBox returns the smallest rectangle enclosing the polygon.
// An empty polygon yields the zero box.
func (p Polygon) BoundingBox() BoundingBox {
	if len(p) == 0 {
		return BoundingBox{}
	}
	box := BoundingBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, pt := range p {
		box.MinX = math.Min(box.MinX, pt.X)
		box.MinY = math.Min(box.MinY, pt.Y)
		box.MaxX = math.Max(box.MaxX, pt.X)
		box.MaxY = math.Max(box.MaxY, pt.Y)
	}
	return box
}

// Centroid returns the vertex average.
func (p Polygon) Centroid() Point {
	if len(p) == 0 {
		return Point{}
	}
	var sx, sy float64
	for _, pt := range p {
		sx += pt.X
		sy += pt.Y
	}
	n := float64(len(p))
	return Point{X: sx / n, Y: sy / n}
}

// Contains reports whether pt lies inside the polygon (even-odd rule).
func (p Polygon) Contains(pt Point) bool {
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Y > pt.Y) != (b.Y > pt.Y) &&
			pt.X < (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// Location places a field on a page.
type Location struct {
	Polygon Polygon `json:"polygon"`
	Page    int     `json:"page"`
}

// parseLocations keeps null entries as nil at their index; per-location data
// elsewhere in the payload correlates by position.
func parseLocations(raw any) ([]*Location, error) {
	if raw == nil {
		return nil, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("locations must be an array, got %T", raw)
	}
	out := make([]*Location, len(entries))
	for i, entry := range entries {
		if entry == nil {
			continue
		}
		loc, err := parseLocation(entry)
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		out[i] = loc
	}
	return out, nil
}

func parseLocation(raw any) (*Location, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("location must be an object, got %T", raw)
	}
	loc := &Location{}
	if page, ok := m["page"]; ok && page != nil {
		n, ok := page.(float64)
		if !ok || n != math.Trunc(n) || n < 0 {
			return nil, fmt.Errorf("page must be a non-negative integer, got %v", page)
		}
		loc.Page = int(n)
	}
	poly, err := parsePolygon(m["polygon"])
	if err != nil {
		return nil, err
	}
	loc.Polygon = poly
	return loc, nil
}

func parsePolygon(raw any) (Polygon, error) {
	if raw == nil {
		return nil, nil
	}
	vertices, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("polygon must be an array, got %T", raw)
	}
	poly := make(Polygon, 0, len(vertices))
	for i, v := range vertices {
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("polygon[%d] must be an [x, y] pair", i)
		}
		x, okX := pair[0].(float64)
		y, okY := pair[1].(float64)
		if !okX || !okY {
			return nil, fmt.Errorf("polygon[%d] coordinates must be numbers", i)
		}
		poly = append(poly, Point{X: x, Y: y})
	}
	return poly, nil
}

// ParseLocation decodes a single {"polygon": [[x, y], ...], "page": n} node.
func ParseLocation(raw any) (*Location, error) {
	if raw == nil {
		return nil, nil
	}
	return parseLocation(raw)
}

// ParsePolygon decodes a [[x, y], ...] vertex list.
func ParsePolygon(raw any) (Polygon, error) {
	return parsePolygon(raw)
}
