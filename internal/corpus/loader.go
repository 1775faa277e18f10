package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

const criticalAnswersFile = "basfakta_nollutrymme.json"

// Loader reads a knowledge directory into a Snapshot.
type Loader struct {
	dir       string
	logger    *observability.Logger
	indexOpts IndexOptions
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, logger *observability.Logger, opts IndexOptions) *Loader {
	return &Loader{dir: dir, logger: logger.WithComponent("corpus"), indexOpts: opts}
}

// Dir returns the knowledge directory.
func (l *Loader) Dir() string {
	return l.dir
}

type sectionRecord struct {
	Title    string   `json:"title"`
	Answer   string   `json:"answer"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

func (s sectionRecord) body() string {
	if s.Answer != "" {
		return s.Answer
	}
	return s.Content
}

type priceRecord struct {
	ServiceName string      `json:"service_name"`
	Price       json.Number `json:"price"`
	Keywords    []string    `json:"keywords"`
}

type fileRecord struct {
	ID              string            `json:"id"`
	City            string            `json:"city"`
	Area            string            `json:"area"`
	Name            string            `json:"name"`
	Contact         Contact           `json:"contact"`
	OpeningHours    []OpeningHours    `json:"opening_hours"`
	Prices          []priceRecord     `json:"prices"`
	BookingLinks    map[string]string `json:"booking_links"`
	Sections        []sectionRecord   `json:"sections"`
	CriticalAnswers []CriticalAnswer  `json:"critical_answers"`
}

// Load reads every JSON file of the directory and builds a fresh snapshot.
// An unreadable directory is an error; a malformed file is logged and skipped.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir %s: %w", l.dir, err)
	}

	b := &builder{
		snap: &Snapshot{
			byID:  make(map[string]*Chunk),
			areas: make(map[string]string),
		},
		logger: l.logger,
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			l.logger.Warn().Str("file", name).Err(err).Msg("skipping unreadable knowledge file")
			b.snap.skipped = append(b.snap.skipped, name)
			continue
		}

		var rec fileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			l.logger.Warn().Str("file", name).Err(err).Msg("skipping malformed knowledge file")
			b.snap.skipped = append(b.snap.skipped, name)
			continue
		}

		b.addFile(name, &rec)
	}

	b.snap.index = BuildIndex(b.snap.chunks, l.indexOpts)
	b.snap.LoadedAt = time.Now()

	st := b.snap.Stats()
	l.logger.Info().
		Str("dir", l.dir).
		Int("files", len(names)).
		Int("chunks", st.Chunks).
		Int("offices", st.Offices).
		Int("critical_answers", st.Critical).
		Int("skipped", len(st.Skipped)).
		Msg("knowledge base loaded")

	return b.snap, nil
}

type builder struct {
	snap   *Snapshot
	logger *observability.Logger
}

func (b *builder) addFile(name string, rec *fileRecord) {
	switch {
	case name == criticalAnswersFile:
		b.snap.critical = append(b.snap.critical, rec.CriticalAnswers...)
	case strings.HasPrefix(name, "basfakta_"):
		for idx, s := range rec.Sections {
			b.add(&Chunk{
				ID:       fmt.Sprintf("%s_%d", name, idx),
				Kind:     KindFact,
				Title:    s.Title,
				Text:     s.body(),
				Source:   name,
				Keywords: s.Keywords,
			})
		}
	case rec.City != "" && rec.Prices != nil:
		b.addOffice(name, rec)
	default:
		b.logger.Debug().Str("file", name).Msg("ignoring knowledge file without sections or prices")
	}
}

func (b *builder) addOffice(name string, rec *fileRecord) {
	office := &Office{
		ID:           rec.ID,
		File:         name,
		City:         rec.City,
		Area:         rec.Area,
		Name:         rec.Name,
		Contact:      rec.Contact,
		OpeningHours: rec.OpeningHours,
		BookingLinks: rec.BookingLinks,
	}
	if office.ID == "" {
		office.ID = strings.TrimSuffix(name, filepath.Ext(name))
	}
	displayName := office.DisplayName()

	if rec.Area != "" {
		b.snap.areas[strings.ToLower(rec.Area)] = rec.City
	}
	if !containsFold(b.snap.cities, rec.City) {
		b.snap.cities = append(b.snap.cities, rec.City)
	}

	for _, p := range rec.Prices {
		amount, err := strconv.ParseFloat(p.Price.String(), 64)
		if err != nil {
			b.logger.Warn().Str("file", name).Str("service", p.ServiceName).Msg("skipping price with non-numeric amount")
			continue
		}
		vehicle := InferVehicle(p.ServiceName)
		office.Prices = append(office.Prices, ServicePrice{
			ServiceName: p.ServiceName,
			Amount:      amount,
			Vehicle:     vehicle,
			Keywords:    p.Keywords,
		})
		if vehicle == "" {
			continue
		}

		keywords := append([]string{}, p.Keywords...)
		keywords = append(keywords, rec.City, vehicle, "pris", "kostnad", FormatAmount(amount), displayName)
		if rec.Area != "" {
			keywords = append(keywords, rec.Area)
		}

		b.add(&Chunk{
			ID:       fmt.Sprintf("%s_price_%s_%s", name, vehicle, ServiceKey(p.ServiceName)),
			Kind:     KindPrice,
			Title:    fmt.Sprintf("%s i %s", p.ServiceName, displayName),
			Text:     fmt.Sprintf("%s kostar %s SEK i %s.", p.ServiceName, FormatAmount(amount), displayName),
			Source:   name,
			City:     rec.City,
			Area:     rec.Area,
			Office:   displayName,
			OfficeID: office.ID,
			Vehicle:  vehicle,
			Keywords: keywords,
			Price: &PriceDetail{
				ServiceName: p.ServiceName,
				Amount:      amount,
				BookingURL:  rec.BookingLinks[BookingKey(vehicle)],
			},
		})
	}

	areaLabel := rec.Area
	if areaLabel == "" {
		areaLabel = "generellt"
	}
	b.add(&Chunk{
		ID:       "kontor_" + name,
		Kind:     KindOfficeSummary,
		Title:    fmt.Sprintf("Kontor i %s - %s", rec.City, areaLabel),
		Text:     strings.TrimSpace(fmt.Sprintf("Kontor i %s %s", rec.City, rec.Area)) + ".",
		Source:   name,
		City:     rec.City,
		Area:     rec.Area,
		Office:   displayName,
		OfficeID: office.ID,
	})

	for idx, s := range rec.Sections {
		b.add(&Chunk{
			ID:       fmt.Sprintf("%s_section_%d", name, idx),
			Kind:     KindOfficeInfo,
			Title:    s.Title,
			Text:     s.body(),
			Source:   name,
			City:     rec.City,
			Area:     rec.Area,
			Office:   displayName,
			OfficeID: office.ID,
			Keywords: s.Keywords,
		})
	}

	b.snap.offices = append(b.snap.offices, office)
}

func (b *builder) add(c *Chunk) {
	if _, dup := b.snap.byID[c.ID]; dup {
		b.logger.Warn().Str("chunk_id", c.ID).Str("file", c.Source).Msg("duplicate chunk id, keeping first")
		return
	}
	b.snap.byID[c.ID] = c
	b.snap.chunks = append(b.snap.chunks, c)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
