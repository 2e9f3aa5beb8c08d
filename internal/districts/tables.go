package districts

import "kvartometr/server/internal/models"

// entry is one canonical district plus the lowercase variants it may
// appear under in adapter text or addresses.
type entry struct {
	Name     string
	Variants []string
}

// registry lists the administrative districts of each supported city.
// Saint Petersburg and Ekaterinburg use районы, Moscow aggregates at
// the округ level (what the sources expose), with the customary
// abbreviations as extra variants.
var registry = map[models.City][]entry{
	models.CitySPB: {
		{Name: "Адмиралтейский"},
		{Name: "Василеостровский", Variants: []string{"васильевский остров"}},
		{Name: "Выборгский"},
		{Name: "Калининский"},
		{Name: "Кировский"},
		{Name: "Колпинский", Variants: []string{"колпино"}},
		{Name: "Красногвардейский"},
		{Name: "Красносельский"},
		{Name: "Кронштадтский", Variants: []string{"кронштадт"}},
		{Name: "Курортный"},
		{Name: "Московский"},
		{Name: "Невский"},
		{Name: "Петроградский", Variants: []string{"петроградская сторона"}},
		{Name: "Петродворцовый", Variants: []string{"петергоф"}},
		{Name: "Приморский"},
		{Name: "Пушкинский", Variants: []string{"пушкин"}},
		{Name: "Фрунзенский"},
		{Name: "Центральный"},
	},
	models.CityMSK: {
		{Name: "Центральный", Variants: []string{"цао"}},
		{Name: "Северный", Variants: []string{"сао"}},
		{Name: "Северо-Восточный", Variants: []string{"свао"}},
		{Name: "Восточный", Variants: []string{"вао"}},
		{Name: "Юго-Восточный", Variants: []string{"ювао"}},
		{Name: "Южный", Variants: []string{"юао"}},
		{Name: "Юго-Западный", Variants: []string{"юзао"}},
		{Name: "Западный", Variants: []string{"зао"}},
		{Name: "Северо-Западный", Variants: []string{"сзао"}},
		{Name: "Зеленоградский", Variants: []string{"зелао", "зеленоград"}},
		{Name: "Новомосковский", Variants: []string{"нао"}},
		{Name: "Троицкий", Variants: []string{"тао", "троицк"}},
	},
	models.CityEKB: {
		{Name: "Верх-Исетский"},
		{Name: "Железнодорожный"},
		{Name: "Кировский"},
		{Name: "Ленинский"},
		{Name: "Октябрьский"},
		{Name: "Орджоникидзевский"},
		{Name: "Чкаловский"},
	},
}

// KnownDistricts returns the canonical district names of a city.
func KnownDistricts(city models.City) []string {
	entries := registry[city]
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
