package models

import "github.com/paulmach/orb"

// NearbyComplex is a row of the static reference coordinate tables.
type NearbyComplex struct {
	ID           int64        `json:"id" gorm:"primaryKey"`
	FullAddress  string       `json:"full_address" gorm:"not null"`
	BuildingType BuildingType `json:"building_type" gorm:"not null"`
	Latitude     float64      `json:"latitude" gorm:"not null"`
	Longitude    float64      `json:"longitude" gorm:"not null"`
}

func (NearbyComplex) TableName() string {
	return "complexes"
}

// Point returns the complex location in orb's lon/lat order.
func (c NearbyComplex) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// RankedComplex pairs a complex with its distance to a query point.
type RankedComplex struct {
	NearbyComplex
	DistanceKm float64 `json:"distance_km"`
}
