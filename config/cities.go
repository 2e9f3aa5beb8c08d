package config

import "kvartometr/server/internal/models"

// City holds static metadata for one supported city.
type City struct {
	Code    models.City `json:"code"`
	Name    string      `json:"name"`
	Center  []float64   `json:"center"`
	Sources []string    `json:"sources"`
}

// SupportedCities is the list of cities the pipeline can crawl.
// Source ids reference adapters registered at startup.
var SupportedCities = []City{
	{
		Code:    models.CitySPB,
		Name:    "Санкт-Петербург",
		Center:  []float64{59.939366, 30.315363},
		Sources: []string{"domofond", "cian", "avito"},
	},
	{
		Code:    models.CityMSK,
		Name:    "Москва",
		Center:  []float64{55.751615, 37.618701},
		Sources: []string{"domofond", "cian", "avito"},
	},
	{
		Code:    models.CityEKB,
		Name:    "Екатеринбург",
		Center:  []float64{56.839103, 60.60825},
		Sources: []string{"domofond", "avito"},
	},
}

// GetCityCodes returns the codes of all supported cities.
func GetCityCodes() []models.City {
	codes := make([]models.City, len(SupportedCities))
	for i, city := range SupportedCities {
		codes[i] = city.Code
	}
	return codes
}

// GetCityByCode returns a city configuration by code.
func GetCityByCode(code models.City) *City {
	for _, city := range SupportedCities {
		if city.Code == code {
			return &city
		}
	}
	return nil
}
