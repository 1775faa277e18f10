package forceadd

import (
	"regexp"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// Rule scores. Higher means more certain.
const (
	ScoreAbsolute      = 999999
	ScoreCritical      = 10000
	ScoreRisk          = 9000
	ScoreFinance       = 8000
	ScoreCarFacts      = 7500
	ScorePermit        = 7000
	ScoreHeavySpecific = 7000
	ScoreRiskGeneric   = 6500
	ScoreHeavy         = 6500
	ScoreMCLicense     = 6000
	ScorePackage       = 5500
	ScoreTheory        = 5300
	ScoreContact       = 5200
	ScoreAM            = 5000
)

// Canonical fact sources.
const (
	sourceRisk       = "basfakta_riskutbildning_bil_mc"
	sourceIntro      = "introduktionskurs"
	sourceCompany    = "basfakta_om_foretaget"
	sourcePermit     = "basfakta_korkortstillstand"
	sourceCar        = "basfakta_personbil_b"
	sourceAM         = "basfakta_am_kort_och_kurser"
	sourceMCLicense  = "basfakta_mc_a_a1_a2"
	sourceCarPackage = "basfakta_lektioner_paket_bil"
	sourceMCPackage  = "basfakta_lektioner_paket_mc"
	sourceTruck      = "basfakta_lastbil_c_ce_c1_c1e"
	sourceTrailer    = "basfakta_be_b96"
	sourceTheory     = "basfakta_korkortsteori_mitt_korkort"
)

// lessonPriceService is the price line injected for generic lesson price
// questions in a locked city.
const lessonPriceService = "Körlektion Bil"

// DefaultOrder is the production rule order.
var DefaultOrder = []string{
	"weather-stop",
	"testlesson",
	"handledare",
	"mc-lessons",
	"locked-city-price",
	"risk1",
	"risk2",
	"car-facts",
	"finance",
	"permit",
	"specific-fact",
	"am",
	"risk-generic",
	"mc-license",
	"car-package",
	"mc-package",
	"heavy-vehicles",
	"theory-app",
	"contact",
}

var (
	reTestLessonText = regexp.MustCompile(`(?i)testlektion.*elev`)
	reAgeYears       = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])\d+\s*(?:år|års)(?:$|[^\p{L}\p{N}_])`)
	reMCLessonCount  = regexp.MustCompile(`(?i)15.?20 lektioner`)
	reExactYear      = regexp.MustCompile(`(?i)1 år`)
	reExactMonths    = regexp.MustCompile(`(?i)24 månader`)
)

// rule adapts a pair of functions to Rule.
type rule struct {
	name  string
	match func(rc *RuleContext) bool
	apply func(rc *RuleContext) []Injection
}

func (r rule) Name() string { return r.name }

func (r rule) Matches(rc *RuleContext) bool { return r.match(rc) }

func (r rule) Apply(rc *RuleContext) []Injection { return r.apply(rc) }

// BuiltinRules returns every known rule.
func BuiltinRules() []Rule {
	return []Rule{
		rule{"weather-stop", weatherMatches, func(rc *RuleContext) []Injection {
			// Weather is answered by the weather tool, never by the corpus.
			rc.TrustAnswer()
			rc.Halt()
			return nil
		}},
		rule{"testlesson", testLessonMatches, testLessonApply},
		rule{"handledare", handledareMatches, handledareApply},
		rule{"mc-lessons", mcLessonsMatches, mcLessonsApply},
		rule{"locked-city-price", lockedCityPriceMatches, lockedCityPriceApply},
		rule{"risk1", risk1Matches, risk1Apply},
		rule{"risk2", risk2Matches, risk2Apply},
		rule{"car-facts", carFactsMatches, sourceApply(sourceCar, ScoreCarFacts, true)},
		rule{"finance", financeMatches, sourceApply(sourceCompany, ScoreFinance, false)},
		rule{"permit", permitMatches, permitApply},
		rule{"specific-fact", specificFactMatches, specificFactApply},
		rule{"am", amMatches, sourceApply(sourceAM, ScoreAM, false)},
		rule{"risk-generic", riskGenericMatches, sourceApply(sourceRisk, ScoreRiskGeneric, false)},
		rule{"mc-license", mcLicenseMatches, sourceApply(sourceMCLicense, ScoreMCLicense, false)},
		rule{"car-package", carPackageMatches, sourceApply(sourceCarPackage, ScorePackage, false)},
		rule{"mc-package", mcPackageMatches, sourceApply(sourceMCPackage, ScorePackage, false)},
		rule{"heavy-vehicles", heavyMatches, heavyApply},
		rule{"theory-app", theoryMatches, sourceApply(sourceTheory, ScoreTheory, false)},
		rule{"contact", contactMatches, sourceApply(sourceCompany, ScoreContact, false)},
	}
}

func sourceApply(source string, score float64, prepend bool) func(rc *RuleContext) []Injection {
	return func(rc *RuleContext) []Injection {
		return []Injection{{Chunks: rc.Snapshot.FactsBySource(source), Score: score, Prepend: prepend}}
	}
}

func factsWhere(snap *corpus.Snapshot, keep func(c *corpus.Chunk) bool) []*corpus.Chunk {
	var out []*corpus.Chunk
	for _, c := range snap.Facts() {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func titleContains(c *corpus.Chunk, subs ...string) bool {
	return textutil.ContainsAny(strings.ToLower(c.Title), subs...)
}

func weatherMatches(rc *RuleContext) bool {
	return rc.Intent == intent.Weather
}

func testLessonMatches(rc *RuleContext) bool {
	return rc.Intent == intent.TestLesson || textutil.ContainsAny(rc.Query, "testlektion", "provlektion")
}

func testLessonApply(rc *RuleContext) []Injection {
	chunks := factsWhere(rc.Snapshot, func(c *corpus.Chunk) bool {
		return reTestLessonText.MatchString(c.Text) || titleContains(c, "testlektion för bil")
	})
	return []Injection{{Chunks: chunks, Score: ScoreAbsolute, Prepend: true}}
}

func handledareMatches(rc *RuleContext) bool {
	return rc.Intent == intent.Handledare || reAgeYears.MatchString(rc.Query)
}

func handledareApply(rc *RuleContext) []Injection {
	return []Injection{{Chunks: rc.Snapshot.FactsBySource(sourceIntro), Score: ScoreAbsolute, Prepend: true}}
}

func mcLessonsMatches(rc *RuleContext) bool {
	return rc.Slots.Vehicle == corpus.VehicleMC ||
		textutil.ContainsWord(rc.Query, "mc") ||
		strings.Contains(rc.Query, "motorcykel")
}

func mcLessonsApply(rc *RuleContext) []Injection {
	chunks := factsWhere(rc.Snapshot, func(c *corpus.Chunk) bool {
		return reMCLessonCount.MatchString(c.Text)
	})
	return []Injection{{Chunks: chunks, Score: ScoreAbsolute, Prepend: true}}
}

func lockedCityPriceMatches(rc *RuleContext) bool {
	return rc.LockedCity != "" &&
		rc.Intent == intent.Price &&
		textutil.ContainsAny(rc.Query, "körlektion", "lektion", "köra", "lektioner")
}

func lockedCityPriceApply(rc *RuleContext) []Injection {
	var chunks []*corpus.Chunk
	for _, c := range rc.Snapshot.PriceChunks(rc.LockedCity) {
		if c.Price != nil && strings.EqualFold(c.Price.ServiceName, lessonPriceService) {
			chunks = append(chunks, c)
		}
	}
	return []Injection{{Chunks: chunks, Score: ScoreCritical, Prepend: true}}
}

var (
	risk1Terms = []string{"risk 1", "riskettan"}
	risk2Terms = []string{"risk 2", "risktvåan", "halkbana"}
)

func risk1Matches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query, risk1Terms...)
}

func risk1Apply(rc *RuleContext) []Injection {
	var chunks []*corpus.Chunk
	for _, c := range rc.Snapshot.FactsBySource(sourceRisk) {
		if titleContains(c, risk1Terms...) {
			chunks = append(chunks, c)
		}
	}
	return []Injection{{Chunks: chunks, Score: ScoreRisk, Prepend: true, HighConfidence: true}}
}

func risk2Matches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query, risk2Terms...)
}

func risk2Apply(rc *RuleContext) []Injection {
	var chunks []*corpus.Chunk
	for _, c := range rc.Snapshot.FactsBySource(sourceRisk) {
		if titleContains(c, "risk 2", "risktvåan", "halkbanan") {
			chunks = append(chunks, c)
		}
	}
	return []Injection{{Chunks: chunks, Score: ScoreRisk, Prepend: true, HighConfidence: true}}
}

func carFactsMatches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query, "automat", "manuell", "villkor 78", "kod 78")
}

func financeMatches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query,
		"betalning", "klarna", "swish", "faktura", "orgnr", "organisationsnummer", "org nr",
		"delbetala", "rabatt", "företagsuppgifter", "mårtenssons", "adress",
	) || textutil.ContainsWord(rc.Query, "kort")
}

func permitMatches(rc *RuleContext) bool {
	return rc.Intent == intent.Permit || textutil.ContainsAny(rc.Query,
		"körkortstillstånd", "tillstånd", "handläggningstid", "läkarintyg", "syntest",
		"grupp 1", "grupp 2", "grupp 3", "prövotid",
	)
}

func permitApply(rc *RuleContext) []Injection {
	var out []Injection
	if strings.Contains(rc.Query, "prövotid") {
		probation := factsWhere(rc.Snapshot, func(c *corpus.Chunk) bool {
			for _, k := range c.Keywords {
				if strings.EqualFold(k, "prövotid") {
					return true
				}
			}
			return false
		})
		out = append(out, Injection{Chunks: probation, Score: ScoreCritical, Prepend: true})
	}
	return append(out, Injection{Chunks: rc.Snapshot.FactsBySource(sourcePermit), Score: ScorePermit})
}

func specificFactMatches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query, "paket", "giltighet", "presentkort", "hur länge gäller")
}

// specificFactApply tags validity periods so the generator repeats them
// verbatim. The snapshot chunk is left untouched.
func specificFactApply(rc *RuleContext) []Injection {
	var chunks []*corpus.Chunk
	for _, c := range rc.Snapshot.Facts() {
		if !titleContains(c, "paket giltighet", "presentkort") {
			continue
		}
		chunks = append(chunks, c.WithText(TagExactFacts(c.Text)))
	}
	return []Injection{{Chunks: chunks, Score: ScoreCritical, Prepend: true}}
}

// TagExactFacts wraps validity periods in EXACT_FACT markers.
func TagExactFacts(text string) string {
	text = reExactYear.ReplaceAllString(text, "<EXACT_FACT>$0</EXACT_FACT>")
	return reExactMonths.ReplaceAllString(text, "<EXACT_FACT>$0</EXACT_FACT>")
}

func amMatches(rc *RuleContext) bool {
	return rc.Slots.Vehicle == corpus.VehicleAM ||
		textutil.ContainsWord(rc.Query, "am") ||
		textutil.ContainsAny(rc.Query, "moped", "moppe")
}

func riskGenericMatches(rc *RuleContext) bool {
	specific := textutil.ContainsAny(rc.Query, risk1Terms...) || textutil.ContainsAny(rc.Query, risk2Terms...)
	return (rc.Intent == intent.Risk || strings.Contains(rc.Query, "riskutbildning")) && !specific
}

func mcLicenseMatches(rc *RuleContext) bool {
	return rc.Slots.Vehicle == corpus.VehicleMC ||
		textutil.ContainsAny(rc.Query, "motorcykel", "125cc") ||
		textutil.ContainsAnyWord(rc.Query, "a1", "a2")
}

func carPackageMatches(rc *RuleContext) bool {
	if rc.Slots.Vehicle == corpus.VehicleCar {
		return true
	}
	return rc.Slots.Vehicle == "" && textutil.ContainsAny(rc.Query,
		"paket", "totalpaket", "minipaket", "mellanpaket", "baspaket", "lektionspaket")
}

func mcPackageMatches(rc *RuleContext) bool {
	return rc.Slots.Vehicle == corpus.VehicleMC || textutil.ContainsAny(rc.Query, "mc-paket", "mc paket")
}

func heavyMatches(rc *RuleContext) bool {
	return rc.Slots.Vehicle == corpus.VehicleTruck || rc.Slots.Vehicle == corpus.VehicleTrailer
}

func heavyApply(rc *RuleContext) []Injection {
	source := sourceTrailer
	if rc.Slots.Vehicle == corpus.VehicleTruck {
		source = sourceTruck
	}
	chunks := rc.Snapshot.FactsBySource(source)

	if textutil.ContainsAny(rc.Query, "lastbil", "c-körkort", "släp", "be-kort", "b96") ||
		textutil.ContainsWord(rc.Query, "ce") {
		return []Injection{{Chunks: chunks, Score: ScoreHeavySpecific, Prepend: true}}
	}
	return []Injection{{Chunks: chunks, Score: ScoreHeavy}}
}

func theoryMatches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query,
		"mittkorkort", "mittkrkort", "korkort", "krkort", "teori", "appen",
		"teori-portalen", "plugga-portalen", "bemästra", "bluestacks", "teoripaket", "teorilektion",
	)
}

func contactMatches(rc *RuleContext) bool {
	return textutil.ContainsAny(rc.Query,
		"kontakta", "kontakt", "telefonnummer", "mail", "support", "finns ni", "kontor",
		"plats", "telefon", "hur många kontor", "fakturaadress", "kvällslektioner",
		"morgonlektioner", "faktura", "fakturor",
	)
}
