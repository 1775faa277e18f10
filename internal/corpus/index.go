package corpus

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// Field identifies an indexed chunk field.
type Field int

const (
	FieldTitle Field = iota
	FieldText
	FieldCity
	FieldArea
	FieldOffice
	FieldKeywords
	FieldVehicle
	numFields
)

var fieldNames = [numFields]string{"title", "text", "city", "area", "office", "keywords", "vehicle"}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// DefaultFieldBoosts weights keywords heaviest and free text lightest.
func DefaultFieldBoosts() map[Field]float64 {
	return map[Field]float64{
		FieldKeywords: 6,
		FieldOffice:   5,
		FieldCity:     4,
		FieldArea:     3,
		FieldTitle:    3,
		FieldVehicle:  2,
		FieldText:     1,
	}
}

const (
	bm25K1       = 1.2
	bm25B        = 0.7
	bm25D        = 0.5
	prefixWeight = 0.375
	fuzzyWeight  = 0.45
)

// IndexOptions configures BuildIndex.
type IndexOptions struct {
	Boosts     map[Field]float64
	FuzzyRatio float64 // max edit distance as a fraction of the query term length
}

type posting struct {
	doc   int
	field Field
	tf    int
}

// Index is an immutable field-weighted BM25 index with prefix and fuzzy
// term matching.
type Index struct {
	docs       []*Chunk
	postings   map[string][]posting
	terms      []string // sorted vocabulary
	docFreq    map[string]*[numFields]int
	fieldLen   [][numFields]int
	avgLen     [numFields]float64
	boosts     [numFields]float64
	fuzzyRatio float64
}

// Hit is one search result.
type Hit struct {
	Chunk *Chunk
	Score float64
	// Terms is the number of distinct query terms the chunk matched.
	Terms int
}

// BuildIndex indexes chunks in order.
func BuildIndex(chunks []*Chunk, opts IndexOptions) *Index {
	boosts := opts.Boosts
	if boosts == nil {
		boosts = DefaultFieldBoosts()
	}

	ix := &Index{
		docs:       chunks,
		postings:   make(map[string][]posting),
		docFreq:    make(map[string]*[numFields]int),
		fieldLen:   make([][numFields]int, len(chunks)),
		fuzzyRatio: opts.FuzzyRatio,
	}
	for f, b := range boosts {
		if f >= 0 && f < numFields {
			ix.boosts[f] = b
		}
	}

	var totals [numFields]int
	for doc, c := range chunks {
		for f, value := range fieldValues(c) {
			tokens := textutil.Tokenize(value)
			ix.fieldLen[doc][f] = len(tokens)
			totals[f] += len(tokens)

			counts := make(map[string]int, len(tokens))
			for _, tok := range tokens {
				counts[tok]++
			}
			for term, tf := range counts {
				ix.postings[term] = append(ix.postings[term], posting{doc: doc, field: Field(f), tf: tf})
				df, ok := ix.docFreq[term]
				if !ok {
					df = new([numFields]int)
					ix.docFreq[term] = df
				}
				df[f]++
			}
		}
	}

	if n := len(chunks); n > 0 {
		for f := range totals {
			ix.avgLen[f] = float64(totals[f]) / float64(n)
		}
	}

	ix.terms = make([]string, 0, len(ix.postings))
	for term := range ix.postings {
		ix.terms = append(ix.terms, term)
	}
	sort.Strings(ix.terms)

	return ix
}

func fieldValues(c *Chunk) [numFields]string {
	var v [numFields]string
	v[FieldTitle] = c.Title
	v[FieldText] = c.Text
	v[FieldCity] = c.City
	v[FieldArea] = c.Area
	v[FieldOffice] = c.Office
	v[FieldKeywords] = strings.Join(c.Keywords, " ")
	v[FieldVehicle] = c.Vehicle
	return v
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Search scores every chunk matching at least one query term. Results are
// sorted by descending score; ties keep corpus order.
func (ix *Index) Search(query string) []Hit {
	queryTerms := uniqueTokens(query)
	if len(queryTerms) == 0 || len(ix.docs) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	matched := make(map[int]int)

	for _, q := range queryTerms {
		perDoc := make(map[int]float64)
		for _, m := range ix.expand(q) {
			for _, p := range ix.postings[m.term] {
				perDoc[p.doc] += m.weight * ix.boosts[p.field] * ix.bm25(m.term, p)
			}
		}
		for doc, s := range perDoc {
			scores[doc] += s
			matched[doc]++
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, s := range scores {
		hits = append(hits, Hit{Chunk: ix.docs[doc], Score: s * float64(matched[doc]), Terms: matched[doc]})
	}

	order := make(map[*Chunk]int, len(hits))
	for i, c := range ix.docs {
		order[c] = i
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return order[hits[i].Chunk] < order[hits[j].Chunk]
	})

	return hits
}

type termMatch struct {
	term   string
	weight float64
}

// expand maps a query term to the index terms it matches with their weights:
// exact 1, prefix and fuzzy matches discounted by length and distance.
// The result order is deterministic so score sums are reproducible.
func (ix *Index) expand(q string) []termMatch {
	var out []termMatch
	seen := make(map[string]struct{})
	qLen := utf8.RuneCountInString(q)

	if _, ok := ix.postings[q]; ok {
		out = append(out, termMatch{term: q, weight: 1})
		seen[q] = struct{}{}
	}

	start := sort.SearchStrings(ix.terms, q)
	for i := start; i < len(ix.terms) && strings.HasPrefix(ix.terms[i], q); i++ {
		t := ix.terms[i]
		if t == q {
			continue
		}
		out = append(out, termMatch{term: t, weight: prefixWeight * float64(qLen) / float64(utf8.RuneCountInString(t))})
		seen[t] = struct{}{}
	}

	maxDist := int(math.Round(ix.fuzzyRatio * float64(qLen)))
	if maxDist < 1 {
		return out
	}
	for _, t := range ix.terms {
		if _, ok := seen[t]; ok {
			continue
		}
		tLen := utf8.RuneCountInString(t)
		if abs(tLen-qLen) > maxDist {
			continue
		}
		if d := runeDistance(q, t); d <= maxDist {
			out = append(out, termMatch{term: t, weight: fuzzyWeight * float64(qLen) / float64(qLen+d)})
		}
	}
	return out
}

// runeDistance is the edit distance counted in runes. smetrics works on bytes,
// so each distinct rune is given a one-byte code first; words never come close
// to 256 distinct runes.
func runeDistance(a, b string) int {
	codes := make(map[rune]byte, len(a))
	encode := func(s string) string {
		buf := make([]byte, 0, len(s))
		for _, r := range s {
			c, ok := codes[r]
			if !ok {
				c = byte(len(codes))
				codes[r] = c
			}
			buf = append(buf, c)
		}
		return string(buf)
	}
	return smetrics.WagnerFischer(encode(a), encode(b), 1, 1, 1)
}

func (ix *Index) bm25(term string, p posting) float64 {
	n := float64(len(ix.docs))
	df := float64(ix.docFreq[term][p.field])
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))

	avg := ix.avgLen[p.field]
	if avg == 0 {
		avg = 1
	}
	length := float64(ix.fieldLen[p.doc][p.field])
	tf := float64(p.tf)
	return idf * (bm25D + tf*(bm25K1+1)/(tf+bm25K1*(1-bm25B+bm25B*length/avg)))
}

func uniqueTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range textutil.Tokenize(s) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
