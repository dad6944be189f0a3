package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedBuildingType = errors.New("unsupported building type")

// BuildingType is the registry's building classification, kept in the
// registry's own Korean labels so addresses and tags round-trip unchanged.
type BuildingType string

const (
	Apartment BuildingType = "아파트"
	MultiUnit BuildingType = "다세대"
	RowHouse  BuildingType = "연립"
	Officetel BuildingType = "오피스텔"
)

var buildingAliases = map[string]BuildingType{
	"아파트":       Apartment,
	"apartment": Apartment,
	"apt":       Apartment,
	"다세대":       MultiUnit,
	"multi":     MultiUnit,
	"연립":        RowHouse,
	"rowhouse":  RowHouse,
	"오피스텔":      Officetel,
	"officetel": Officetel,
}

// ParseBuildingType accepts the registry label or its English alias.
func ParseBuildingType(s string) (BuildingType, error) {
	if bt, ok := buildingAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return bt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBuildingType, s)
}

// Family collapses building types that share a registry feed and a
// reference coordinate table. 다세대 and 연립 are reported together.
func (b BuildingType) Family() BuildingType {
	if b == RowHouse {
		return MultiUnit
	}
	return b
}

func (b BuildingType) Valid() bool {
	switch b {
	case Apartment, MultiUnit, RowHouse, Officetel:
		return true
	}
	return false
}

// DealKind selects between sale records and jeonse deposit records.
type DealKind string

const (
	Trade DealKind = "trade"
	Rent  DealKind = "rent"
)

func ParseDealKind(s string) (DealKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trade", "매매":
		return Trade, nil
	case "rent", "전세":
		return Rent, nil
	}
	return "", fmt.Errorf("unknown deal kind %q", s)
}
