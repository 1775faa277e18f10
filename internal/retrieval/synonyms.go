package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// synonym is one expansion rule. When Key occurs in the query, the first two
// Terms are appended.
type synonym struct {
	Key   string
	Terms []string
}

// Synonyms is checked in order against the growing query, so an appended term
// can trigger a later rule. Keys of up to three runes must match as whole
// words; longer keys match anywhere.
var Synonyms = []synonym{
	{"14 år och 9 månader", []string{"14 år och 9 månader", "14 år", "9 månader"}},
	{"16 år", []string{"16", "fyllt 16", "från 16"}},
	{"18 år", []string{"18", "fyllt 18"}},
	{"24 år", []string{"24", "fyllt 24"}},
	{"5 år", []string{"fem år", "giltig", "giltighet"}},
	{"2 år", []string{"två år", "2 år", "prövotid"}},
	{"tre och en halv timme", []string{"3,5 timmar", "3.5 timmar"}},
	{"100 min", []string{"100-minuters pass", "100 minuter"}},
	{"80 min", []string{"80-minuters pass", "80 minuter", "standardlektion"}},
	{"45 min", []string{"45 minuter", "uppkörningstid"}},
	{"fyra veckor", []string{"4 veckor", "handläggningstid"}},
	{"elev", []string{"du som ska ta körkort", "du som elev"}},
	{"handledare", []string{"handledare", "din handledare", "handledaren"}},
	{"behöver gå", []string{"måste gå", "krävs", "obligatorisk"}},
	{"ansöka", []string{"ansöka", "ansökan"}},
	{"göra om", []string{"ta om", "göra om"}},
	{"del 1", []string{"risk 1", "riskettan"}},
	{"del 2", []string{"risk 2", "risktvåan"}},
	{"riskettan", []string{"risk 1", "teoretisk", "alkohol"}},
	{"introduktionskurs", []string{"handledarkurs", "handledare"}},
	{"körkortstillstånd", []string{"tillstånd", "krävs"}},
	{"riskutbildning", []string{"del 1", "del 2", "risk 1"}},
	{"obligatorisk", []string{"krav", "måste"}},
	{"medeltung lastbil", []string{"medeltung lastbil", "c1"}},
	{"dubbellektion", []string{"dubbellektion", "dubbel lektion"}},
	{"duo-lektion", []string{"duo-lektion", "duolektion"}},
	{"första lektion", []string{"din första lektion", "första körlektion"}},
	{"manövrar", []string{"manöverkörning", "manöverbana"}},
	{"digital teori", []string{"digitalt teorimaterial", "mitt körkort"}},
	{"lån av moped", []string{"lån av moped", "låna moped"}},
	{"skyddsutrustning", []string{"utrustning", "lånas"}},
	{"personbil", []string{"bil", "personbilar"}},
	{"automatbil", []string{"automat", "automatväxlad bil"}},
	{"manuell bil", []string{"manuell", "manuellt"}},
	{"mc", []string{"motorcykel", "mc-körlektion"}},
	{"be", []string{"släp", "be-körkort"}},
	{"b96", []string{"släp", "b96-körkort"}},
	{"125cc", []string{"125 cc", "125cc"}},
	{"göteborg", []string{"gbg", "göteborg"}},
	{"stockholm", []string{"sthlm", "stockholm"}},
	{"halkbanan", []string{"risk 2", "risktvåan"}},
	{"lärare", []string{"instruktör", "körlärare"}},
	{"intensivkurs", []string{"intensiv", "snabb kurs"}},
	{"paket", []string{"kurspaket", "körkortspaket"}},
	{"organisationsnummer", []string{"organisationsnummer", "org nr"}},
	{"regler", []string{"gäller", "krav"}},
	{"skillnad", []string{"skillnad", "skillnaden"}},
	{"övningskör", []string{"övningskör", "övningsköra"}},
	{"teori", []string{"teori", "teoriundervisning"}},
	{"mölndal", []string{"mölndal", "molndal"}},
	{"bokningslänk", []string{"bokningslänk", "bokningssida"}},
	{"testlektion", []string{"testlektion", "provlektion"}},
	{"provlektion", []string{"provlektion", "prova-på"}},
	{"startlektion", []string{"startlektion", "start-lektion"}},
	{"villkor 78", []string{"automatväxlad", "automatlåda"}},
	{"a1", []string{"a1", "a1-körkort"}},
	{"a2", []string{"a2", "a2-körkort"}},
	{"syntest", []string{"syntest", "synundersökning"}},
	{"klarna", []string{"klarna", "delbetala"}},
	{"faktura", []string{"faktura", "fakturaadress"}},
	{"avbokning", []string{"avbokning", "avboka"}},
	{"återbetalning", []string{"återbetalning", "pengar tillbaka"}},
	{"vab", []string{"vab", "vård av barn"}},
	{"policy", []string{"policy", "regler"}},
	{"swish", []string{"swish", "betala med swish"}},
	{"telefonnummer", []string{"telefonnummer", "ring"}},
	{"orgnr", []string{"organisationsnummer", "org.nr"}},
}

var (
	reCC         = regexp.MustCompile(`\b(\d+)\s?cc\b`)
	reKW         = regexp.MustCompile(`\b(\d+)\s?k\s?w\b`)
	reMinutes    = regexp.MustCompile(`\b(\d+)min(uter)?\b`)
	reMinWord    = regexp.MustCompile(`\bmin(u?ter)?\b`)
	reQueryNoise = regexp.MustCompile(`[^\p{L}\p{N}_\- {}%]`)
)

// NormalizeQuery lowercases, separates units from their numbers and replaces
// punctuation with spaces.
func NormalizeQuery(q string) string {
	q = strings.ToLower(q)
	q = reCC.ReplaceAllString(q, "$1 cc")
	q = reKW.ReplaceAllString(q, "$1 kw")
	q = reMinutes.ReplaceAllString(q, "$1 min")
	q = reMinWord.ReplaceAllString(q, "min")
	q = reQueryNoise.ReplaceAllString(q, " ")
	return strings.Join(strings.Fields(q), " ")
}

// ExpandQuery appends up to two synonyms per matching rule and truncates the
// result to maxLen runes.
func ExpandQuery(q string, maxLen int) string {
	var b strings.Builder
	b.WriteString(q)
	for _, s := range Synonyms {
		if !matchesKey(b.String(), s.Key) {
			continue
		}
		terms := s.Terms
		if len(terms) > 2 {
			terms = terms[:2]
		}
		for _, t := range terms {
			b.WriteByte(' ')
			b.WriteString(t)
		}
	}
	return truncateRunes(b.String(), maxLen)
}

func matchesKey(q, key string) bool {
	if utf8.RuneCountInString(key) <= 3 {
		return textutil.ContainsWord(q, key)
	}
	return strings.Contains(q, key)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
