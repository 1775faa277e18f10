package intent

import (
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

type phraseTarget struct {
	phrases []string
	target  string
}

// cityAliases maps colloquial names, districts and misspellings to a city.
var cityAliases = []phraseTarget{
	{[]string{"djursholm", "enskededalen", "kungsholmen", "ostermalm", "östermalm", "osteraker", "österåker", "sodermalm", "södermalm", "solna", "sthlm"}, "Stockholm"},
	{[]string{"stora holm", "frölunda", "frolunda", "gbg", "goteborg", "götebrog", "gotebrog", "gothenburg", "göötehoorg", "gooteboorg", "hogsbo", "högsbo", "molndal", "mölndal", "molnlycke", "mölnlycke", "ullevi", "vastra frolunda", "västra frölunda"}, "Göteborg"},
	{[]string{"bulltofta", "limhamn", "malmo", "sodervarn", "södervärn", "triangeln", "varnhem", "värnhem", "vastra hamnen", "västra hamnen"}, "Malmö"},
	{[]string{"katedral", "sodertull", "södertull"}, "Lund"},
	{[]string{"halsobacken", "hälsobacken"}, "Helsingborg"},
	{[]string{"vaxjo", "växjö"}, "Växjö"},
}

// vehicleMap lists the phrases for each vehicle class; first match wins.
var vehicleMap = []phraseTarget{
	{[]string{"be", "be-kort", "be körkort", "be-körkort", "b96", "släp", "tungt släp", "utökad b"}, corpus.VehicleTrailer},
	{[]string{"lastbil", "c", "c1", "c1e", "ce", "c-körkort", "tung lastbil", "medeltung lastbil"}, corpus.VehicleTruck},
	{[]string{"am", "moped", "mopedutbildning", "moppe", "klass 1"}, corpus.VehicleAM},
	{[]string{"bil", "personbil", "b-körkort", "b körkort", "körlektion bil", "körlektion personbil"}, corpus.VehicleCar},
	{[]string{"mc", "motorcykel", "a1", "a2", "a-körkort", "125cc", "125 cc", "lätt motorcykel", "tung motorcykel"}, corpus.VehicleMC},
	{[]string{"introduktionskurs", "handledarkurs", "handledare"}, corpus.VehicleIntro},
}

// serviceMap maps phrases to a canonical service name; first match wins.
var serviceMap = []phraseTarget{
	{[]string{"körlektion bil", "lektion bil"}, "Körlektion BIL"},
	{[]string{"testlektion", "provlektion"}, "Testlektion Bil"},
	{[]string{"riskettan", "risk 1"}, "Risk 1"},
	{[]string{"risktvåan", "risk 2", "halkbana"}, "Risk 2"},
	{[]string{"am-kurs", "am kurs", "mopedutbildning", "moppekort"}, "AM Mopedutbildning"},
	{[]string{"introduktionskurs", "handledarkurs"}, "Introduktionskurs"},
	{[]string{"totalpaket"}, "Totalpaket"},
	{[]string{"intensiv", "intensivutbildning", "intensivvecka"}, "Intensivkurs"},
}

// VehicleClasses returns the vehicle classes in match order.
func VehicleClasses() []string {
	out := make([]string, len(vehicleMap))
	for i, v := range vehicleMap {
		out[i] = v.target
	}
	return out
}

// CanonicalCity maps a colloquial or misspelled city name to its canonical
// spelling. Unknown names are returned trimmed.
func CanonicalCity(name string) string {
	n := textutil.Normalize(name)
	for _, a := range cityAliases {
		if strings.EqualFold(a.target, n) {
			return a.target
		}
		for _, p := range a.phrases {
			if p == n {
				return a.target
			}
		}
	}
	return strings.TrimSpace(name)
}
