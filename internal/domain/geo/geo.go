// Package geo answers "which candidates can serve this point" over a grid of
// go-geom bounds.
package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/okian/leadflow/internal/domain/model"
)

const (
	earthRadiusKM = 6371.0088

	// boundsPad widens the box so rounding never rejects a point Nearby
	// would accept on exact distance.
	boundsPad = 1e-3

	defaultCellDegrees = 0.5
)

// Neighbor is a candidate whose service radius covers the queried point.
type Neighbor struct {
	Candidate  *model.Candidate
	DistanceKM float64
}

type cell struct {
	x, y int
}

type entry struct {
	candidate *model.Candidate
	point     *geom.Point
	bounds    *geom.Bounds
}

// Index is an immutable spatial index built from one candidate snapshot.
type Index struct {
	cellDegrees float64
	cells       map[cell][]*entry
	size        int
}

// NewIndex indexes every candidate with a valid location and positive radius.
// Others are skipped and can never be returned by Nearby.
func NewIndex(candidates []*model.Candidate, opts ...Option) *Index {
	idx := &Index{
		cellDegrees: defaultCellDegrees,
		cells:       make(map[cell][]*entry),
	}
	for _, opt := range opts {
		opt(idx)
	}

	for _, c := range candidates {
		if c == nil || !c.Location.Valid() || !(c.RadiusKM > 0) || math.IsInf(c.RadiusKM, 0) {
			continue
		}
		e := &entry{
			candidate: c,
			point:     geom.NewPointFlat(geom.XY, []float64{c.Location.Lng, c.Location.Lat}),
			bounds:    radiusBounds(c.Location, c.RadiusKM),
		}
		minX, minY := idx.cellOf(e.bounds.Min(0), e.bounds.Min(1))
		maxX, maxY := idx.cellOf(e.bounds.Max(0), e.bounds.Max(1))
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				k := cell{x, y}
				idx.cells[k] = append(idx.cells[k], e)
			}
		}
		idx.size++
	}
	return idx
}

// Size returns the number of indexed candidates.
func (idx *Index) Size() int {
	return idx.size
}

// Nearby returns candidates whose radius covers loc, ordered by candidate id.
func (idx *Index) Nearby(loc model.Location) []Neighbor {
	if !loc.Valid() {
		return nil
	}
	coord := geom.Coord{loc.Lng, loc.Lat}
	bucket := idx.cells[idx.cellKey(loc.Lng, loc.Lat)]

	out := make([]Neighbor, 0, len(bucket))
	for _, e := range bucket {
		if !e.bounds.OverlapsPoint(geom.XY, coord) {
			continue
		}
		d := Distance(pointLocation(e.point), loc)
		if d > e.candidate.RadiusKM {
			continue
		}
		out = append(out, Neighbor{Candidate: e.candidate, DistanceKM: d})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Candidate.ID < out[j].Candidate.ID
	})
	return out
}

// Distance is the great-circle distance in kilometres.
func Distance(a, b model.Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// radiusBounds over-approximates the spherical cap of radius km around loc.
// The longitude span is asin(sin(r/R)/cos(lat)); caps reaching a pole span
// every longitude.
func radiusBounds(loc model.Location, km float64) *geom.Bounds {
	ang := km / earthRadiusKM * (1 + boundsPad)
	dLat := ang * 180 / math.Pi
	minLat, maxLat := math.Max(-90, loc.Lat-dLat), math.Min(90, loc.Lat+dLat)

	dLng := 180.0
	cos := math.Cos(loc.Lat * math.Pi / 180)
	if sin := math.Sin(ang); maxLat < 90 && minLat > -90 && ang < math.Pi/2 && sin < cos {
		dLng = math.Min(180, math.Asin(sin/cos)*180/math.Pi)
	}
	minLng, maxLng := math.Max(-180, loc.Lng-dLng), math.Min(180, loc.Lng+dLng)
	return geom.NewBounds(geom.XY).Set(minLng, minLat, maxLng, maxLat)
}

func pointLocation(p *geom.Point) model.Location {
	return model.Location{Lng: p.X(), Lat: p.Y()}
}

func (idx *Index) cellOf(lng, lat float64) (int, int) {
	k := idx.cellKey(lng, lat)
	return k.x, k.y
}

func (idx *Index) cellKey(lng, lat float64) cell {
	return cell{
		x: int(math.Floor(lng / idx.cellDegrees)),
		y: int(math.Floor(lat / idx.cellDegrees)),
	}
}
