// Package booking picks the booking or information link appended to an
// answer and the policy link for terms-and-conditions questions.
package booking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// Link classes. CAR, MC and AM are also the keys of office booking links.
const (
	ClassCar    = "CAR"
	ClassMC     = "MC"
	ClassAM     = "AM"
	ClassBil    = "BIL"
	ClassIntro  = "INTRO"
	ClassRisk1  = "RISK1"
	ClassRisk2  = "RISK2"
	ClassTheory = "TEORI"
	ClassHeavy  = "TUNG"
	ClassPolicy = "POLICY"
)

// FallbackLink is a school-wide link used when no office link applies.
type FallbackLink struct {
	Text     string
	LinkText string
	URL      string
}

// Markdown renders the text with its link phrase turned into a link.
func (f FallbackLink) Markdown() string {
	return strings.Replace(f.Text, f.LinkText, fmt.Sprintf("[%s](%s)", f.LinkText, f.URL), 1)
}

// DefaultFallbacks are the school-wide links per class.
func DefaultFallbacks() map[string]FallbackLink {
	return map[string]FallbackLink{
		ClassAM:     {"Boka din AM-kurs via vår hemsida här", "här", "https://mydrivingacademy.com/two-wheels/ta-am-korkort/"},
		ClassMC:     {"För mer MC-information, kolla vår hemsida", "hemsida", "https://mydrivingacademy.com/two-wheels/home/"},
		ClassBil:    {"För mer information om bilkörkort, kolla vår hemsida", "hemsida", "https://mydrivingacademy.com/kom-igang/"},
		ClassIntro:  {"Boka Handledarkurs/Introduktionskurs här", "här", "https://mydrivingacademy.com/handledarutbildning/"},
		ClassRisk1:  {"Boka Riskettan (Risk 1) här", "här", "https://mydrivingacademy.com/riskettan/"},
		ClassRisk2:  {"Boka Risktvåan/Halkbana (Risk 2) här", "här", "https://mydrivingacademy.com/halkbana/"},
		ClassTheory: {"Plugga körkortsteori i appen Mitt Körkort här", "här", "https://mydrivingacademy.com/app/"},
		ClassHeavy:  {"Boka utbildning för Tung Trafik (C/CE) här", "här", "https://mydrivingacademy.com/tungtrafik/"},
		ClassPolicy: {"Läs våra köpvillkor och policy här", "här", "https://mydrivingacademy.com/privacy-policy/"},
	}
}

// Link is a chosen booking link.
type Link struct {
	Class string `json:"class"`
	URL   string `json:"url"`
	Text  string `json:"text"`
	// Office is empty for school-wide links.
	Office string `json:"office,omitempty"`
}

// Markdown renders the line appended to an answer.
func (l *Link) Markdown() string {
	return fmt.Sprintf("✅ [%s](%s)", l.Text, l.URL)
}

// Request is the input of Resolve.
type Request struct {
	Query         string
	Intent        intent.Intent
	LockedVehicle string
	// Chunks are the assembled chunks in rank order.
	Chunks   []*corpus.Chunk
	Snapshot *corpus.Snapshot
}

// Decision is the outcome of Resolve. At most one of Link and Policy is set.
type Decision struct {
	Link   *Link
	Policy *FallbackLink
	// Appended is set by Decorate when the answer was changed.
	Appended bool
}

// Tracker remembers which link classes a conversation already received.
type Tracker interface {
	LinkSent(class string) bool
	MarkLinkSent(class string)
}

var reExplicit = regexp.MustCompile(`(?i)bokningslänk|skicka länk|länk för (?:bil|mc|am|kurs)`)

var policyTerms = []string{
	"policy", "kundavtal", "villkor", "orgnr", "organisationsnummer", "ångerrätt", "återbetalning", "faktura",
}

// Resolver chooses links.
type Resolver struct {
	fallbacks map[string]FallbackLink
}

// NewResolver creates a resolver. A nil table uses DefaultFallbacks.
func NewResolver(fallbacks map[string]FallbackLink) *Resolver {
	if fallbacks == nil {
		fallbacks = DefaultFallbacks()
	}
	return &Resolver{fallbacks: fallbacks}
}

// Resolve prefers a link of the highest ranked office, then a policy link
// for terms questions, then a school-wide link for the detected topic.
func (r *Resolver) Resolve(req Request) Decision {
	q := strings.ToLower(req.Query)

	if link := r.officeLink(req, q); link != nil {
		return Decision{Link: link}
	}

	if textutil.ContainsAny(q, policyTerms...) {
		if p, ok := r.fallbacks[ClassPolicy]; ok {
			return Decision{Policy: &p}
		}
		return Decision{}
	}

	class := fallbackClass(req.LockedVehicle, q)
	if class == "" {
		return Decision{}
	}
	// Office link keys use CAR; the fallback table uses BIL.
	key := class
	if key == ClassCar {
		key = ClassBil
	}
	f, ok := r.fallbacks[key]
	if !ok {
		return Decision{}
	}
	return Decision{Link: &Link{Class: class, URL: f.URL, Text: linkText(class, f)}}
}

// Decorate appends the resolved links to answer. A booking link is added
// when the user asked for one or its class was not sent before; the class
// is then marked on the tracker.
func (r *Resolver) Decorate(answer string, req Request, tracker Tracker) (string, Decision) {
	d := r.Resolve(req)

	if d.Policy != nil {
		d.Appended = true
		return answer + "\n\n---\n\n" + d.Policy.Markdown(), d
	}
	if d.Link == nil {
		return answer, d
	}

	if IsExplicit(req.Intent, req.Query) || !tracker.LinkSent(d.Link.Class) {
		tracker.MarkLinkSent(d.Link.Class)
		d.Appended = true
		return answer + "\n\n" + d.Link.Markdown(), d
	}
	return answer, d
}

// IsExplicit reports whether the user asked for a link.
func IsExplicit(in intent.Intent, query string) bool {
	return in == intent.Booking || in == intent.Contact || reExplicit.MatchString(query)
}

func (r *Resolver) officeLink(req Request, q string) *Link {
	if req.Snapshot == nil {
		return nil
	}

	var office *corpus.Office
	for _, c := range req.Chunks {
		if c.OfficeID == "" {
			continue
		}
		if o, ok := req.Snapshot.Office(c.OfficeID); ok && len(o.BookingLinks) > 0 {
			office = o
			break
		}
	}
	if office == nil {
		return nil
	}

	key := ""
	switch {
	case req.LockedVehicle != "":
		key = corpus.BookingKey(strings.ToUpper(req.LockedVehicle))
	case mentionsAM(q):
		key = ClassAM
	case mentionsMC(q):
		key = ClassMC
	default:
		for _, c := range req.Chunks {
			if c.Kind == corpus.KindPrice && c.Vehicle != "" {
				key = corpus.BookingKey(c.Vehicle)
				break
			}
		}
	}
	if key == "" {
		for _, k := range []string{ClassAM, ClassMC, ClassCar} {
			if office.BookingLinks[k] != "" {
				key = k
				break
			}
		}
	}

	url := office.BookingLinks[key]
	if url == "" {
		return nil
	}
	return &Link{Class: key, URL: url, Text: linkText(key, FallbackLink{}), Office: office.DisplayName()}
}

func fallbackClass(lockedVehicle, q string) string {
	switch {
	case lockedVehicle != "":
		return corpus.BookingKey(strings.ToUpper(lockedVehicle))
	case mentionsAM(q):
		return ClassAM
	case mentionsMC(q):
		return ClassMC
	case textutil.ContainsAny(q, "handledar", "introduktionskurs"):
		return ClassIntro
	case textutil.ContainsAny(q, "riskettan", "risk 1"):
		return ClassRisk1
	case textutil.ContainsAny(q, "risktvåan", "risk 2", "halkbana"):
		return ClassRisk2
	case textutil.ContainsAny(q, "teori", "mitt körkort", "app"):
		return ClassTheory
	case textutil.ContainsAny(q, "lastbil", "tung trafik") || textutil.ContainsAnyWord(q, "ce", "c", "c1"):
		return ClassHeavy
	case textutil.ContainsAny(q, "lektion") && !textutil.ContainsAny(q, "motorcykel", "duo"):
		return ClassCar
	}
	return ""
}

func mentionsAM(q string) bool {
	return textutil.ContainsWord(q, "am") || strings.Contains(q, "moped")
}

func mentionsMC(q string) bool {
	return textutil.ContainsWord(q, "mc") || strings.Contains(q, "motorcykel")
}

func linkText(class string, f FallbackLink) string {
	switch class {
	case ClassMC:
		return "Boka din MC-kurs här"
	case ClassAM:
		return "Boka din AM-kurs här"
	case ClassCar:
		return "Boka din körlektion här"
	}
	if f.Text != "" {
		return f.Text
	}
	return "Boka här"
}
