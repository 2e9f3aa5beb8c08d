package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"kvartometr/server/internal/models"
)

// LoadBoundaries reads optional per-city district boundary files
// (<code>.geojson) from dir. Each feature must carry a "district"
// property naming a canonical district of that city. A missing file is
// not an error: the resolver simply has no geometry for that city and
// skips the point-in-polygon strategy. A file that exists but does not
// parse is an error, since silently dropping boundaries would change
// resolution results between runs.
func LoadBoundaries(dir string) (map[models.City]*geojson.FeatureCollection, error) {
	boundaries := make(map[models.City]*geojson.FeatureCollection)
	if dir == "" {
		return boundaries, nil
	}

	for _, city := range SupportedCities {
		path := filepath.Join(dir, fmt.Sprintf("%s.geojson", city.Code))
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read boundary file %s: %w", path, err)
		}

		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse boundary file %s: %w", path, err)
		}
		boundaries[city.Code] = fc
	}

	return boundaries, nil
}
