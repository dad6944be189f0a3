package config

import (
	"path/filepath"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// BuildingType describes a building family the engine can estimate
type BuildingType struct {
	Type          models.BuildingType `json:"type"`
	Name          string              `json:"name"`
	ReferenceFile string              `json:"reference_file"`
}

// SupportedBuildingTypes lists one entry per registry feed. 연립 shares the
// 다세대 entry.
var SupportedBuildingTypes = []BuildingType{
	{
		Type:          models.Apartment,
		Name:          "apartment",
		ReferenceFile: "apartments.csv",
	},
	{
		Type:          models.MultiUnit,
		Name:          "multi_unit",
		ReferenceFile: "multi_units.csv",
	},
	{
		Type:          models.Officetel,
		Name:          "officetel",
		ReferenceFile: "officetels.csv",
	},
}

// GetBuildingTypeNames returns the labels accepted on the API
func GetBuildingTypeNames() []string {
	names := []string{string(models.RowHouse)}
	for _, bt := range SupportedBuildingTypes {
		names = append(names, string(bt.Type))
	}
	return names
}

// GetBuildingType returns the entry serving bt, or nil
func GetBuildingType(bt models.BuildingType) *BuildingType {
	family := bt.Family()
	for i := range SupportedBuildingTypes {
		if SupportedBuildingTypes[i].Type == family {
			return &SupportedBuildingTypes[i]
		}
	}
	return nil
}

// ReferencePaths maps each building family to its CSV under dir.
func ReferencePaths(dir string) map[models.BuildingType]string {
	paths := make(map[models.BuildingType]string, len(SupportedBuildingTypes))
	for _, bt := range SupportedBuildingTypes {
		paths[bt.Type] = filepath.Join(dir, bt.ReferenceFile)
	}
	return paths
}
