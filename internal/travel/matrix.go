// Package travel builds the symmetric great-circle travel model.
package travel

import (
	"fmt"
	"math"

	"rasd/internal/model"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLmb := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dLmb/2)*math.Sin(dLmb/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Matrix is a symmetric travel model over an ordered node list. Closures are
// not baked in: the router layer decides which edges are forbidden, so one
// matrix serves every closure scenario.
type Matrix struct {
	Nodes []model.Node
	Index map[string]int
	Km    [][]float64
	Min   [][]float64
}

// BuildMatrix computes pairwise distances and travel times at the base speed.
// The matrix is symmetric with a zero diagonal.
func BuildMatrix(nodes []model.Node, baseSpeedKmh float64) (*Matrix, error) {
	if baseSpeedKmh <= 0 {
		return nil, fmt.Errorf("build matrix: base speed must be > 0, got %v", baseSpeedKmh)
	}
	n := len(nodes)
	idx := make(map[string]int, n)
	for i, nd := range nodes {
		if _, dup := idx[nd.ID]; dup {
			return nil, fmt.Errorf("build matrix: duplicate node %q", nd.ID)
		}
		idx[nd.ID] = i
	}
	km := make([][]float64, n)
	min := make([][]float64, n)
	for i := range km {
		km[i] = make([]float64, n)
		min[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineKm(nodes[i].Lat, nodes[i].Lon, nodes[j].Lat, nodes[j].Lon)
			t := d / baseSpeedKmh * 60.0
			km[i][j], km[j][i] = d, d
			min[i][j], min[j][i] = t, t
		}
	}
	return &Matrix{Nodes: nodes, Index: idx, Km: km, Min: min}, nil
}

// KmBetween looks up the distance between two node ids. Unknown ids are a
// caller bug; the builder validates every referenced node up front.
func (m *Matrix) KmBetween(a, b string) float64 {
	return m.Km[m.Index[a]][m.Index[b]]
}

// MinBetween looks up the travel time in minutes between two node ids.
func (m *Matrix) MinBetween(a, b string) float64 {
	return m.Min[m.Index[a]][m.Index[b]]
}

// ClosureSet answers whether the direct edge between two nodes is closed.
// Pairs are unordered.
type ClosureSet struct {
	pairs map[[2]string]struct{}
}

func NewClosureSet(pairs []model.ClosurePair) *ClosureSet {
	cs := &ClosureSet{pairs: make(map[[2]string]struct{}, len(pairs))}
	for _, p := range pairs {
		cs.pairs[orderPair(p.From, p.To)] = struct{}{}
	}
	return cs
}

func orderPair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (c *ClosureSet) Closed(a, b string) bool {
	if c == nil {
		return false
	}
	_, ok := c.pairs[orderPair(a, b)]
	return ok
}

func (c *ClosureSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.pairs)
}

// SampleLeg interpolates display points between two nodes, endpoints
// included. Linear interpolation in lat/lon is plenty at city scale.
func SampleLeg(a, b model.Node, steps int) [][2]float64 {
	if steps < 1 {
		steps = 1
	}
	out := make([][2]float64, 0, steps+1)
	for s := 0; s <= steps; s++ {
		f := float64(s) / float64(steps)
		out = append(out, [2]float64{
			a.Lat + (b.Lat-a.Lat)*f,
			a.Lon + (b.Lon-a.Lon)*f,
		})
	}
	return out
}
