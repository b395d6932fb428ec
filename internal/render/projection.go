package render

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	metersPerDegreeLat = 110540.0
	metersPerDegreeLon = 111320.0
)

// projection maps lon/lat onto canvas pixels with an equirectangular projection centered on
// the poster location. The canvas height spans twice the fetch distance.
type projection struct {
	center    orb.Point
	width     float64
	height    float64
	pxPerM    float64
	cosCenter float64
}

func newProjection(center orb.Point, distance int, width, height int) projection {
	if distance <= 0 {
		distance = 1
	}
	return projection{
		center:    center,
		width:     float64(width),
		height:    float64(height),
		pxPerM:    float64(height) / (2 * float64(distance)),
		cosCenter: math.Cos(center.Lat() * math.Pi / 180),
	}
}

func (p projection) point(pt orb.Point) (float64, float64) {
	dx := (pt.Lon() - p.center.Lon()) * metersPerDegreeLon * p.cosCenter
	dy := (pt.Lat() - p.center.Lat()) * metersPerDegreeLat
	return p.width/2 + dx*p.pxPerM, p.height/2 - dy*p.pxPerM
}

// visible reports whether the bound intersects the canvas.
func (p projection) visible(b orb.Bound) bool {
	minX, maxY := p.point(b.Min)
	maxX, minY := p.point(b.Max)
	return maxX >= 0 && minX <= p.width && maxY >= 0 && minY <= p.height
}
