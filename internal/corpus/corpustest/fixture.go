// Package corpustest writes a small but complete knowledge directory for tests.
package corpustest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// Well-known chunk ids in the fixture.
const (
	GoteborgCarPriceID  = "goteborg_ullevi.json_price_BIL_Körlektion_BIL"
	GoteborgTestPriceID = "goteborg_ullevi.json_price_BIL_Testlektion_BIL"
	GoteborgMCPriceID   = "goteborg_ullevi.json_price_MC_Körlektion_MC"
	MalmoCarPriceID     = "malmo_triangeln.json_price_BIL_Körlektion_BIL"
	StockholmCarPriceID = "stockholm.json_price_BIL_Körlektion_BIL"
	Risk1ID             = "basfakta_riskutbildning_bil_mc.json_0"
	Risk2ID             = "basfakta_riskutbildning_bil_mc.json_1"
	TestLessonFactID    = "basfakta_lektioner_paket_bil.json_0"
	PackageValidityID   = "basfakta_lektioner_paket_bil.json_1"
	HandledareFactID    = "basfakta_introduktionskurs_handledarkurs_bil.json_0"
	MCLessonsFactID     = "basfakta_mc_lektioner_utbildning.json_0"
	CompanyPaymentID    = "basfakta_om_foretaget.json_0"
	CompanyContactID    = "basfakta_om_foretaget.json_1"
	PermitFactID        = "basfakta_korkortstillstand.json_0"
	ProbationFactID     = "basfakta_korkortstillstand.json_1"
	AMFactID            = "basfakta_am_kort_och_kurser.json_0"
	UlleviSectionID     = "goteborg_ullevi.json_section_0"
	UlleviSummaryID     = "kontor_goteborg_ullevi.json"
	TriangelnSectionID  = "malmo_triangeln.json_section_0"
)

// Files maps file names to contents.
var Files = map[string]string{
	"basfakta_nollutrymme.json": `{
  "critical_answers": [
    {"id": "ca_kundtjanst", "match_keywords": ["kundtjänst", "reklamation"],
     "answer": "Kontakta vår kundtjänst på 010-20 70 775 eller info@mydrivingacademy.com."}
  ]
}`,
	"basfakta_riskutbildning_bil_mc.json": `{
  "sections": [
    {"title": "Risk 1 (Riskettan) för bil", "answer": "Risk 1 handlar om alkohol, droger och trötthet. Kursen tar cirka 3 timmar.", "keywords": ["risk 1", "riskettan", "riskutbildning"]},
    {"title": "Risk 2 (Halkbanan) för bil", "answer": "Risk 2 genomförs på halkbana och tar cirka 4 timmar.", "keywords": ["risk 2", "risktvåan", "halkbana"]}
  ]
}`,
	"basfakta_introduktionskurs_handledarkurs_bil.json": `{
  "sections": [
    {"title": "Introduktionskurs för handledare", "answer": "Handledaren måste ha haft körkort i minst 5 år av de senaste 10 åren.", "keywords": ["handledare", "introduktionskurs"]}
  ]
}`,
	"basfakta_lektioner_paket_bil.json": `{
  "sections": [
    {"title": "Testlektion för bil", "answer": "En testlektion är till för nya elever som vill prova på.", "keywords": ["testlektion", "provlektion"]},
    {"title": "Paket giltighet", "content": "Lektionspaket gäller i 24 månader och presentkort gäller i 1 år.", "keywords": ["paket", "giltighet", "presentkort"]}
  ]
}`,
	"basfakta_mc_lektioner_utbildning.json": `{
  "sections": [
    {"title": "Antal MC-lektioner", "answer": "De flesta behöver 15-20 lektioner innan uppkörning på MC.", "keywords": ["mc", "lektioner"]}
  ]
}`,
	"basfakta_om_foretaget.json": `{
  "sections": [
    {"title": "Betalning och faktura", "answer": "Vi tar emot Swish, kort och Klarna. Fakturaadress: Box 123, 411 01 Göteborg.", "keywords": ["betalning", "klarna", "faktura"]},
    {"title": "Kontakta oss", "answer": "Kundtjänst nås på 010-20 70 775 vardagar 08-17.", "keywords": ["kontakt", "telefon"]}
  ]
}`,
	"basfakta_korkortstillstand.json": `{
  "sections": [
    {"title": "Körkortstillstånd", "answer": "Du behöver ett körkortstillstånd med syntest innan du får övningsköra.", "keywords": ["tillstånd", "syntest"]},
    {"title": "Prövotid", "answer": "Prövotiden är två år efter att du tagit körkort.", "keywords": ["prövotid"]}
  ]
}`,
	"basfakta_am_kort_och_kurser.json": `{
  "sections": [
    {"title": "AM-körkort", "answer": "AM-körkort ger behörighet att köra moped klass 1.", "keywords": ["am", "moped"]}
  ]
}`,
	"goteborg_ullevi.json": `{
  "id": "goteborg_ullevi",
  "city": "Göteborg",
  "area": "Ullevi",
  "name": "Mårtenssons Trafikskola Ullevi",
  "contact": {"phone": "031-123 45 67", "email": "ullevi@mydrivingacademy.com", "address": "Ullevigatan 1, Göteborg"},
  "opening_hours": [{"days": "Mån-Fre", "hours": "08-17"}],
  "prices": [
    {"service_name": "Körlektion BIL", "price": 695, "keywords": ["körlektion"]},
    {"service_name": "Testlektion BIL", "price": 499, "keywords": ["testlektion"]},
    {"service_name": "Körlektion MC", "price": 850, "keywords": ["mc-lektion"]},
    {"service_name": "Risk 1", "price": 800}
  ],
  "booking_links": {"CAR": "https://boka.example/gbg-bil", "MC": "https://boka.example/gbg-mc", "AM": "https://boka.example/gbg-am"},
  "sections": [
    {"title": "Hitta till Ullevi", "answer": "Vi ligger på Ullevigatan 1 nära Ullevi i Göteborg. Boka här via vår bokningssida.", "keywords": ["adress", "hitta"]}
  ]
}`,
	"malmo_triangeln.json": `{
  "id": "malmo_triangeln",
  "city": "Malmö",
  "area": "Triangeln",
  "contact": {"phone": "040-123 45", "email": "malmo@mydrivingacademy.com", "address": "Triangeln 2, Malmö"},
  "prices": [
    {"service_name": "Körlektion BIL", "price": 720},
    {"service_name": "AM Moped", "price": 4500}
  ],
  "booking_links": {"CAR": "https://boka.example/malmo-bil"},
  "sections": [
    {"title": "Kontakt Triangeln", "answer": "Ring oss på 040-123 45 eller kom förbi vid Triangeln.", "keywords": ["kontakt", "telefon"]}
  ]
}`,
	"stockholm.json": `{
  "id": "stockholm",
  "city": "Stockholm",
  "prices": [
    {"service_name": "Körlektion BIL", "price": 750},
    {"service_name": "Körlektion MC", "price": 900}
  ]
}`,
	"broken.json": `{"sections": [`,
	"README.txt":  `not a knowledge file`,
}

// WriteDir writes the fixture files into a fresh temp directory.
func WriteDir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range Files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

// Load writes and loads the fixture corpus.
func Load(t testing.TB) *corpus.Snapshot {
	t.Helper()
	loader := corpus.NewLoader(WriteDir(t), observability.NopLogger(), corpus.IndexOptions{FuzzyRatio: 0.2})
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)
	return snap
}
