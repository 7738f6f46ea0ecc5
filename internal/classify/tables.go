// Package classify infers equipment type and country from free text and
// decides whether a candidate is fielded military equipment. All decisions
// are driven by ordered rule tables; the first matching rule wins.
package classify

import (
	"regexp"
	"strings"
)

// Rule pairs a label with the pattern that selects it.
type Rule struct {
	Label   string
	Pattern *regexp.Regexp
}

// Tables is the complete rule set. Slice order is significant.
type Tables struct {
	// KnownModels maps a country to a regex of specific model names.
	KnownModels []Rule
	// KnownModelType is returned when a known model matches.
	KnownModelType string
	// Types is the generic category table.
	Types []Rule
	// TankType names the Types rule that needs corroborating evidence.
	TankType string
	// MilitaryEvidence corroborates a bare tank mention.
	MilitaryEvidence *regexp.Regexp
	Countries        []Rule
	// CountryFields are fact labels consulted when no country keyword matches.
	CountryFields []string
	// CountryAliases maps lowercased spellings to canonical country names.
	CountryAliases map[string]string
	Exclusions     []Rule
	// Categories refines a type into a finer category.
	Categories   []Rule
	URLTypes     []Rule
	URLCountries []Rule
}

// Labels returned when nothing matches.
const (
	OtherType      = "Other"
	UnknownCountry = "Unknown"
)

// prefix matches any alternative that starts at a word boundary.
func prefix(alts ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + quote(alts) + `)`)
}

// word matches any alternative as a whole word.
func word(alts ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + quote(alts) + `)(?:$|[^\p{L}\p{N}])`)
}

func contains(alts ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:` + quote(alts) + `)`)
}

func quote(alts []string) string {
	q := make([]string, len(alts))
	for i, a := range alts {
		q[i] = regexp.QuoteMeta(a)
	}
	return strings.Join(q, "|")
}

// DefaultTables returns the built-in English and Ukrainian lexicon.
func DefaultTables() Tables {
	return Tables{
		KnownModelType: "Tank",
		KnownModels: []Rule{
			{"United States", prefix("m1 abrams", "m1a1", "m1a2", "m60", "m48", "m47", "m46", "m26", "m4 sherman")},
			{"Russia", prefix("t-14 armata", "t-90", "t-80", "t-72", "t-64", "t-62", "t-55", "t-34", "is-2", "kv-1")},
			{"Ukraine", prefix("t-84 oplot", "t-84", "t-80ud", "t-64bm bulat", "t-64bv", "t-64bm")},
			{"Germany", prefix("leopard 2", "leopard 1", "panther", "tiger", "tiger ii", "pz iv", "pz iii")},
			{"United Kingdom", prefix("challenger 2", "challenger 1", "chieftain", "centurion", "cromwell", "churchill")},
			{"France", prefix("leclerc", "amx-56", "amx-40", "amx-30", "amx-13")},
			{"Israel", prefix("merkava")},
			{"China", prefix("type 99", "type 96", "type 90", "type 85", "type 80", "type 69", "type 59")},
			{"South Korea", prefix("k2 black panther", "k1", "k1a1", "k1a2")},
			{"Japan", prefix("type 10", "type 90", "type 74", "type 61")},
		},
		TankType: "Tank",
		Types: []Rule{
			{"Tank", prefix("main battle tank", "mbt", "tank", "танк", "бронетанкова техніка", "бронетанкові війська")},
			{"IFV", prefix("infantry fighting vehicle", "ifv", "бмп", "бмд", "бойова машина піхоти")},
			{"APC", prefix("armoured personnel carrier", "armored personnel carrier", "apc", "бтр", "бронетранспортер")},
			{"Artillery", prefix("self-propelled artillery", "howitzer", "artillery", "артилерія", "самохідна артилерійська установка")},
			{"Aircraft", prefix("fighter aircraft", "military aircraft", "aircraft", "літак", "військовий літак")},
			{"Helicopter", prefix("military helicopter", "helicopter", "вертоліт", "бойовий вертоліт")},
			{"Naval", prefix("naval ship", "destroyer", "frigate", "submarine", "корабель", "військовий корабель")},
		},
		MilitaryEvidence: prefix("military", "army", "armed forces", "armour", "armor", "armament",
			"combat", "battle", "gun", "cannon", "turret", "warfare", "defence", "defense", "weapon"),
		Countries: []Rule{
			{"United States", word("united states", "usa", "us", "american", "американський", "сша")},
			{"Russia", word("russian", "russia", "soviet", "ussr", "російський", "радянський")},
			{"Ukraine", word("ukrainian", "ukraine", "український", "україна")},
			{"Germany", word("german", "germany", "німецький", "німеччина")},
			{"France", word("french", "france", "французький", "франція")},
			{"United Kingdom", word("british", "united kingdom", "uk", "британський", "велика британія")},
			{"China", word("chinese", "china", "китайський", "китай")},
			{"Israel", word("israeli", "israel", "ізраїльський", "ізраїль")},
			{"Turkey", word("turkish", "turkey", "турецький", "туреччина")},
			{"South Korea", word("south korean", "south korea", "rok", "південнокорейський", "південна корея")},
			{"Japan", word("japanese", "japan", "японський", "японія")},
			{"India", word("indian", "india", "індійський", "індія")},
		},
		CountryFields: []string{"country of origin", "place of origin", "country", "origin"},
		CountryAliases: map[string]string{
			"usa":          "United States",
			"us":           "United States",
			"u.s.":         "United States",
			"america":      "United States",
			"uk":           "United Kingdom",
			"britain":      "United Kingdom",
			"ussr":         "Russia",
			"soviet union": "Russia",
			"west germany": "Germany",
			"east germany": "Germany",
		},
		Exclusions: []Rule{
			{"prototype", prefix("prototype", "concept", "experimental", "прототип", "експериментальний")},
			{"cancelled", prefix("cancelled", "canceled", "abandoned", "never built", "never entered service", "скасований", "не був побудований")},
			{"obsolete", prefix("obsolete", "retired", "decommissioned", "застарілий", "знятий з озброєння")},
			{"civilian", prefix("civilian", "commercial", "passenger", "цивільний", "комерційний")},
		},
		Categories: []Rule{
			{"Main Battle Tank", prefix("main battle tank", "mbt")},
			{"Light Tank", prefix("light tank")},
			{"Fighter Aircraft", prefix("fighter")},
			{"Bomber Aircraft", prefix("bomber")},
			{"Transport", prefix("transport")},
			{"Reconnaissance", prefix("reconnaissance")},
		},
		URLTypes: []Rule{
			{"Tank", contains("tank")},
			{"Aircraft", contains("aircraft")},
			{"Helicopter", contains("helicopter")},
		},
		URLCountries: []Rule{
			{"United States", contains("united_states", "american")},
			{"Russia", contains("russian", "soviet")},
			{"Ukraine", contains("ukrainian", "ukraine")},
			{"Germany", contains("german", "germany")},
			{"France", contains("french", "france")},
			{"United Kingdom", contains("united_kingdom", "british")},
			{"China", contains("chinese", "china")},
			{"Israel", contains("israeli", "israel")},
		},
	}
}
