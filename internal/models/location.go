package models

import "github.com/paulmach/orb"

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Point converts the location into an orb point (lon, lat order).
func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}
