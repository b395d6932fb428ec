package geodata

import (
	"github.com/paulmach/orb"
)

// Highway classes used for styling. Anything else is drawn as HighwayDefault.
const (
	HighwayMotorway    = "motorway"
	HighwayPrimary     = "primary"
	HighwaySecondary   = "secondary"
	HighwayTertiary    = "tertiary"
	HighwayResidential = "residential"
	HighwayDefault     = "default"
)

// Edge is one street segment of the road network.
type Edge struct {
	Highway string         `cbor:"1,keyasint"`
	Line    orb.LineString `cbor:"2,keyasint"`
}

// Graph is the street network around a location.
type Graph struct {
	Edges []Edge `cbor:"1,keyasint"`
}

// Features is a set of area features, water bodies or parks.
type Features struct {
	Polygons []orb.Polygon `cbor:"1,keyasint"`
}

func (f *Features) Empty() bool {
	return f == nil || len(f.Polygons) == 0
}

// MapData is everything needed to render a poster. Water and Parks may be nil.
type MapData struct {
	Graph    *Graph
	Water    *Features
	Parks    *Features
	Center   orb.Point
	Distance int
}

// Location is what the user asked for.
type Location struct {
	City    string
	State   string
	Country string
}

// Classify maps an OSM highway tag onto the styled classes.
func Classify(highway string) string {
	switch highway {
	case "motorway", "motorway_link", "trunk", "trunk_link":
		return HighwayMotorway
	case "primary", "primary_link":
		return HighwayPrimary
	case "secondary", "secondary_link":
		return HighwaySecondary
	case "tertiary", "tertiary_link":
		return HighwayTertiary
	case "residential", "living_street", "unclassified":
		return HighwayResidential
	default:
		return HighwayDefault
	}
}
