package source

import "time"

// Built-in source keys.
const (
	Wikipedia       = "wikipedia"
	ArmyRecognition = "army-recognition"
	MilitaryToday   = "military-today"
)

var wikiCategorySelectors = Selectors{
	Container: "#mw-pages",
	ItemLink:  ".mw-category-group ul li a",
}

var wikiDetail = DetailSelectors{
	Title:        "#firstHeading",
	Description:  ".mw-parser-output > p",
	FactRow:      ".infobox tr",
	FactLabel:    "th",
	FactValue:    "td",
	InfoboxImage: ".infobox img",
	GalleryImage: ".gallery img, .thumb img",
	ContentImage: ".mw-parser-output img",
}

// Defaults returns the built-in sources. Military Today is registered but
// disabled.
func Defaults() []Config {
	return []Config{
		{
			Key:              Wikipedia,
			Name:             "Wikipedia",
			BaseURL:          "https://en.wikipedia.org",
			Enabled:          true,
			MaxRetries:       3,
			Delay:            300 * time.Millisecond,
			Timeout:          10 * time.Second,
			DetailTimeout:    8 * time.Second,
			Headless:         HeadlessNever,
			WikiLinks:        true,
			ListPages:        wikiListPages(),
			ListTable:        "table.wikitable",
			Categories:       wikiCategories(),
			Detail:           wikiDetail,
			CategoryDefaults: wikiCategorySelectors,
		},
		{
			Key:            ArmyRecognition,
			Name:           "Army Recognition",
			BaseURL:        "https://www.armyrecognition.com",
			Enabled:        true,
			MaxRetries:     2,
			Delay:          time.Second,
			Timeout:        10 * time.Second,
			DetailTimeout:  8 * time.Second,
			Headless:       HeadlessAuto,
			PerCategoryCap: true,
			Categories: sections(Selectors{ItemLink: ".article-item a, .equipment-item a"},
				"/weapon/tanks", "Tank",
				"/weapon/ifv", "IFV",
				"/weapon/apc", "APC",
				"/weapon/artillery", "Artillery",
				"/weapon/air-defense", "",
				"/weapon/aircraft", "Aircraft",
				"/weapon/helicopters", "Helicopter",
				"/weapon/navy", "Naval",
			),
			Detail: DetailSelectors{
				Title:         "h1",
				Description:   ".article-content p",
				FactRow:       ".specifications table tr, .specs-table tr",
				FactLabel:     "td",
				FactValue:     "td",
				FactValueLast: true,
				ContentImage:  ".article-content img",
			},
			CategoryDefaults: Selectors{ItemLink: ".article-item a, .equipment-item a"},
		},
		{
			Key:            MilitaryToday,
			Name:           "Military Today",
			BaseURL:        "https://www.military-today.com",
			Enabled:        false,
			MaxRetries:     2,
			Delay:          time.Second,
			Timeout:        10 * time.Second,
			DetailTimeout:  8 * time.Second,
			Headless:       HeadlessAuto,
			PerCategoryCap: true,
			Categories: sections(Selectors{ItemLink: "table a"},
				"/tanks", "Tank",
				"/aircraft", "Aircraft",
				"/helicopters", "Helicopter",
				"/navy", "Naval",
				"/artillery", "Artillery",
				"/apc", "APC",
				"/ifv", "IFV",
			),
			Detail: DetailSelectors{
				Title:         "h1",
				Description:   "p",
				FactRow:       "table tr",
				FactLabel:     "td",
				FactValue:     "td",
				FactValueLast: true,
				ContentImage:  "img",
			},
			CategoryDefaults: Selectors{ItemLink: "table a"},
		},
	}
}

// Default builds a registry from the built-in sources.
func Default() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}

func wikiListPages() []ListPage {
	pages := []string{
		"List_of_main_battle_tanks_by_country",
		"List_of_main_battle_tanks",
		"List_of_tanks_of_the_Soviet_Union",
		"List_of_tanks_of_the_United_States",
		"List_of_tanks_of_the_United_Kingdom",
		"List_of_tanks_of_Germany",
		"List_of_tanks_of_France",
		"List_of_tanks_of_Israel",
		"List_of_tanks_of_China",
		"List_of_tanks_of_Ukraine",
		"List_of_active_United_States_military_aircraft",
		"List_of_active_Russian_military_aircraft",
		"List_of_active_Ukrainian_military_aircraft",
		"List_of_active_United_Kingdom_military_aircraft",
		"List_of_active_French_military_aircraft",
		"List_of_active_German_military_aircraft",
	}
	out := make([]ListPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, ListPage{Path: "/wiki/" + p})
	}
	return out
}

func wikiCategories() []Category {
	type cat struct{ name, typ string }
	cats := []cat{
		{"Main_battle_tanks", "Tank"},
		{"Main_battle_tanks_by_country", "Tank"},
		{"Main_battle_tanks_of_the_United_States", "Tank"},
		{"Main_battle_tanks_of_Russia", "Tank"},
		{"Main_battle_tanks_of_Ukraine", "Tank"},
		{"Main_battle_tanks_of_Germany", "Tank"},
		{"Main_battle_tanks_of_the_United_Kingdom", "Tank"},
		{"Main_battle_tanks_of_France", "Tank"},
		{"Main_battle_tanks_of_Israel", "Tank"},
		{"Main_battle_tanks_of_China", "Tank"},
		{"Main_battle_tanks_of_South_Korea", "Tank"},
		{"Main_battle_tanks_of_Japan", "Tank"},
		{"Main_battle_tanks_of_India", "Tank"},
		{"Military_vehicles", ""},
		{"Military_aircraft", "Aircraft"},
		{"Military_ships", "Naval"},
		{"Military_helicopters", "Helicopter"},
	}
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, Category{
			Name:      "Category:" + c.name,
			Path:      "/wiki/Category:" + c.name,
			Type:      c.typ,
			Selectors: wikiCategorySelectors,
		})
	}
	return out
}

// sections pairs path/type arguments into categories sharing selectors.
func sections(sel Selectors, pathType ...string) []Category {
	out := make([]Category, 0, len(pathType)/2)
	for i := 0; i+1 < len(pathType); i += 2 {
		out = append(out, Category{
			Name:      pathType[i],
			Path:      pathType[i],
			Type:      pathType[i+1],
			Selectors: sel,
		})
	}
	return out
}
