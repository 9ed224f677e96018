package search

import "testing"

func square() Polygon {
	return Polygon{
		{Lat: 30.0, Lng: -98.0},
		{Lat: 30.0, Lng: -97.0},
		{Lat: 31.0, Lng: -97.0},
		{Lat: 31.0, Lng: -98.0},
	}
}

func TestPolygonContains(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"center", 30.5, -97.5, true},
		{"outside north", 31.5, -97.5, false},
		{"outside east", 30.5, -96.5, false},
		{"far away", 40.7, -74.0, false},
		{"near corner inside", 30.01, -97.99, true},
	}
	p := square()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Contains(tt.lat, tt.lng); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

// Containment must not depend on where the vertex ring starts.
func TestPolygonContainsRotationInvariant(t *testing.T) {
	p := square()
	lat, lng := 30.5, -97.5
	for shift := range p {
		rotated := make(Polygon, len(p))
		for i := range p {
			rotated[i] = p[(i+shift)%len(p)]
		}
		if !rotated.Contains(lat, lng) {
			t.Errorf("rotation %d: Contains(%v, %v) = false, want true", shift, lat, lng)
		}
	}
}

func TestPolygonContainsConcave(t *testing.T) {
	// L-shape: the notch at the top right is outside.
	p := Polygon{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 4},
		{Lat: 2, Lng: 4},
		{Lat: 2, Lng: 2},
		{Lat: 4, Lng: 2},
		{Lat: 4, Lng: 0},
	}
	if !p.Contains(1, 3) {
		t.Error("point in the wide arm should be inside")
	}
	if p.Contains(3, 3) {
		t.Error("point in the notch should be outside")
	}
}

func TestPolygonDegenerate(t *testing.T) {
	if (Polygon{}).Contains(30, -97) {
		t.Error("empty polygon should contain nothing")
	}
	two := Polygon{{Lat: 30, Lng: -98}, {Lat: 31, Lng: -97}}
	if two.Contains(30.5, -97.5) {
		t.Error("two-vertex polygon should contain nothing")
	}
}
