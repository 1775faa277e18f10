// Package pipeline runs one conversational turn: session lock, entity
// extraction, mode selection, retrieval, generation and booking links.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/audit"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/booking"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/generator"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/retrieval"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/session"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/storage"
)

var (
	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("empty query")
	// ErrInternal wraps unexpected failures. The response still carries a
	// user facing answer and the session id.
	ErrInternal = errors.New("internal error")
)

// Fixed answers.
const (
	ClarificationAnswer = "För att ge ett korrekt svar behöver jag lite mer info — vilken stad eller vilket kontor menar du, eller vilken exakt tjänst (t.ex. 'Risk 1', 'MC paket', 'introduktionskurs')?"
	NotUnderstoodAnswer = "Jag förstår inte riktigt vad du menar nu? Kan du omformulera din fråga."
)

const contextPreviewRunes = 200

// Generator produces answers. *generator.Generator implements it.
type Generator interface {
	Classify(ctx context.Context, question string) generator.Mode
	Generate(ctx context.Context, req generator.Request) (*generator.Answer, error)
}

// SnapshotSource returns the active corpus. *corpus.Store implements it.
type SnapshotSource interface {
	Current() (*corpus.Snapshot, error)
}

// Request is one user turn.
type Request struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId,omitempty"`
	// Saved* seed a new session with client side context.
	SavedCity    string `json:"savedCity,omitempty"`
	SavedArea    string `json:"savedArea,omitempty"`
	SavedVehicle string `json:"savedVehicle,omitempty"`
}

// ContextItem summarizes one chunk used for the answer.
type ContextItem struct {
	Title string  `json:"title"`
	Text  string  `json:"text"`
	City  string  `json:"city,omitempty"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// Debug explains how an answer was produced.
type Debug struct {
	NLU              intent.Result `json:"nlu"`
	Mode             string        `json:"mode,omitempty"`
	ModeReason       string        `json:"mode_reason,omitempty"`
	DetectedCity     string        `json:"detected_city,omitempty"`
	DetectedArea     string        `json:"detected_area,omitempty"`
	DetectedVehicle  string        `json:"detected_vehicle,omitempty"`
	ChunksUsed       int           `json:"chunks_used"`
	RetrievedContext []string      `json:"retrieved_context,omitempty"`
	Rules            []string      `json:"rules,omitempty"`
	FallbackID       string        `json:"fallback_id,omitempty"`
	LowConfidence    bool          `json:"low_confidence,omitempty"`
	BestScore        float64       `json:"best_score,omitempty"`
	Booking          *booking.Link `json:"booking_link,omitempty"`
	Degraded         bool          `json:"degraded,omitempty"`
	SnapshotVersion  uint64        `json:"snapshot_version"`
}

// Response is the answer to one turn.
type Response struct {
	SessionID     string              `json:"sessionId"`
	Answer        string              `json:"answer"`
	Context       []ContextItem       `json:"context"`
	LockedContext contextlock.Context `json:"locked_context"`
	EmergencyMode bool                `json:"emergency_mode,omitempty"`
	Debug         *Debug              `json:"debug,omitempty"`
}

// Deps wires the pipeline.
type Deps struct {
	Corpus    SnapshotSource
	Router    *retrieval.Router
	Generator Generator
	Sessions  session.Store
	// Optional.
	Locker  *session.Locker
	Booking *booking.Resolver
	Audit   audit.Recorder
	Logger  *observability.Logger
	Clock   func() time.Time
}

// Pipeline answers turns. It is safe for concurrent use; turns of the same
// session are serialized.
type Pipeline struct {
	corpus   SnapshotSource
	router   *retrieval.Router
	gen      Generator
	sessions session.Store
	locker   *session.Locker
	booking  *booking.Resolver
	audit    audit.Recorder
	logger   *observability.Logger
	now      func() time.Time

	parserMu   sync.Mutex
	parserSnap *corpus.Snapshot
	parser     *intent.Parser
}

// New creates a pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Corpus == nil:
		return nil, fmt.Errorf("pipeline: corpus is required")
	case deps.Router == nil:
		return nil, fmt.Errorf("pipeline: router is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("pipeline: generator is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("pipeline: session store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &Pipeline{
		corpus:   deps.Corpus,
		router:   deps.Router,
		gen:      deps.Generator,
		sessions: deps.Sessions,
		locker:   deps.Locker,
		booking:  deps.Booking,
		audit:    deps.Audit,
		logger:   logger.WithComponent("pipeline"),
		now:      deps.Clock,
	}
	if p.locker == nil {
		p.locker = session.NewLocker()
	}
	if p.booking == nil {
		p.booking = booking.NewResolver(nil)
	}
	if p.audit == nil {
		p.audit = audit.NewLogRecorder(logger)
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// turn carries the state of one Handle call.
type turn struct {
	start    time.Time
	req      Request
	query    string
	snap     *corpus.Snapshot
	sess     *session.Session
	first    bool
	parsed   intent.Result
	locked   contextlock.Context
	mode     modeDecision
	result   *retrieval.RetrievalResponse
	degraded bool
}

// Handle answers one turn. ErrEmptyQuery and corpus.ErrNoCorpus are returned
// without a response; ErrInternal comes with a fallback response.
func (p *Pipeline) Handle(ctx context.Context, req Request) (resp *Response, err error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := p.logger.WithContext(ctx).WithSession(sessionID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("turn panicked")
			resp, err = &Response{SessionID: sessionID, Answer: NotUnderstoodAnswer, Context: []ContextItem{}}, ErrInternal
		}
	}()

	snap, err := p.corpus.Current()
	if err != nil {
		return nil, err
	}

	unlock, err := p.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t := &turn{start: p.now(), req: req, query: query, snap: snap}
	if err := p.loadSession(ctx, t, sessionID); err != nil {
		logger.Error().Err(err).Msg("session unavailable")
		return p.internal(sessionID), fmt.Errorf("%w: %v", ErrInternal, err)
	}

	resp, err = p.run(ctx, t, logger)
	if err != nil {
		logger.Error().Err(err).Msg("turn failed")
		return p.internal(sessionID), fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return resp, nil
}

func (p *Pipeline) internal(sessionID string) *Response {
	return &Response{SessionID: sessionID, Answer: NotUnderstoodAnswer, Context: []ContextItem{}}
}

func (p *Pipeline) loadSession(ctx context.Context, t *turn, id string) error {
	sess, err := p.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		sess, err = p.sessions.Create(ctx, id, contextlock.Context{
			City:    intent.CanonicalCity(t.req.SavedCity),
			Area:    t.req.SavedArea,
			Vehicle: strings.ToUpper(t.req.SavedVehicle),
		})
	}
	if err != nil {
		return err
	}
	t.sess = sess
	return nil
}

func (p *Pipeline) run(ctx context.Context, t *turn, logger *observability.Logger) (*Response, error) {
	saved := t.sess.Locked
	t.first = t.sess.IsFirstMessage()
	t.sess.Append(session.RoleUser, t.query)

	parsed := p.parserFor(t.snap).Parse(t.query, intent.Slots{City: saved.City, Area: saved.Area, Vehicle: saved.Vehicle})
	t.parsed = intent.ForceWeather(parsed, t.query)

	t.locked = contextlock.Resolve(saved, contextlock.Context{
		City:    firstNonEmpty(t.parsed.Extracted.City, saved.City),
		Area:    t.parsed.Extracted.Area,
		Vehicle: t.parsed.Extracted.Vehicle,
	})
	t.sess.Lock(t.locked)

	t.mode = chooseMode(ctx, p.gen, modeInput{
		query:        t.query,
		parsed:       t.parsed,
		savedCity:    saved.City,
		savedVehicle: saved.Vehicle,
		previous:     t.sess.LastUserMessage(true),
	})
	if t.mode.inherited {
		t.parsed.Intent = intent.Price
	}

	result, err := p.router.Query(ctx, retrieval.RetrievalRequest{
		Snapshot: t.snap,
		Query:    t.query,
		Parsed:   t.parsed,
		Locked:   t.locked,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	t.result = result

	var resp *Response
	switch {
	case result.Emergency != nil:
		resp = p.emergency(t)
	case result.Assembly != nil && result.Assembly.LowConfidence:
		resp = p.clarify(t)
	default:
		resp = p.answer(ctx, t, logger)
	}

	t.sess.Append(session.RoleAssistant, resp.Answer)
	if err := p.sessions.Save(ctx, t.sess); err != nil {
		logger.Warn().Err(err).Msg("session save failed")
	}

	p.record(ctx, t, resp, logger)
	return resp, nil
}

func (p *Pipeline) emergency(t *turn) *Response {
	answer := t.result.Emergency.Answer
	if t.first {
		answer = generator.Greeting(p.now().Hour()) + answer
	}
	t.sess.Answered = true

	return &Response{
		SessionID:     t.sess.ID,
		Answer:        answer,
		Context:       []ContextItem{},
		LockedContext: t.locked,
		EmergencyMode: true,
		Debug: &Debug{
			NLU:             t.parsed,
			FallbackID:      t.result.Emergency.ID,
			SnapshotVersion: t.result.SnapshotVersion,
		},
	}
}

func (p *Pipeline) clarify(t *turn) *Response {
	return &Response{
		SessionID:     t.sess.ID,
		Answer:        ClarificationAnswer,
		Context:       []ContextItem{},
		LockedContext: t.locked,
		Debug: &Debug{
			NLU:             t.parsed,
			Mode:            string(t.mode.mode),
			ModeReason:      t.mode.reason,
			LowConfidence:   true,
			BestScore:       t.result.Assembly.BestScore,
			Rules:           t.result.ForceAdd.Fired,
			SnapshotVersion: t.result.SnapshotVersion,
		},
	}
}

func (p *Pipeline) answer(ctx context.Context, t *turn, logger *observability.Logger) *Response {
	assembly := t.result.Assembly
	if assembly == nil {
		assembly = &retrieval.Assembly{}
	}

	text := ""
	ans, err := p.gen.Generate(ctx, generator.Request{
		Question:     t.query,
		Context:      assembly.Context,
		City:         t.locked.City,
		Area:         t.locked.Area,
		FirstMessage: t.first,
		Mode:         t.mode.mode,
		Snapshot:     t.snap,
	})
	if err != nil {
		logger.Warn().Err(err).Str("mode", string(t.mode.mode)).Msg("generation failed, answering with fallback")
		text = generator.FailureAnswer(t.mode.mode)
		t.degraded = true
	} else {
		text = ans.Text
	}

	chunks := make([]*corpus.Chunk, 0, len(assembly.Chunks))
	items := make([]ContextItem, 0, len(assembly.Chunks))
	titles := make([]string, 0, len(assembly.Chunks))
	for _, sc := range assembly.Chunks {
		chunks = append(chunks, sc.Chunk)
		titles = append(titles, sc.Chunk.Title)
		items = append(items, ContextItem{
			Title: sc.Chunk.Title,
			Text:  truncateRunes(sc.Chunk.Text, contextPreviewRunes),
			City:  sc.Chunk.City,
			Type:  string(sc.Chunk.Kind),
			Score: sc.Score,
		})
	}

	text, decision := p.booking.Decorate(text, booking.Request{
		Query:         t.query,
		Intent:        t.parsed.Intent,
		LockedVehicle: t.locked.Vehicle,
		Chunks:        chunks,
		Snapshot:      t.snap,
	}, t.sess)
	t.sess.Answered = true

	debug := &Debug{
		NLU:              t.parsed,
		Mode:             string(t.mode.mode),
		ModeReason:       t.mode.reason,
		DetectedCity:     t.locked.City,
		DetectedArea:     t.locked.Area,
		DetectedVehicle:  t.locked.Vehicle,
		ChunksUsed:       len(chunks),
		RetrievedContext: titles,
		Rules:            t.result.ForceAdd.Fired,
		BestScore:        assembly.BestScore,
		Degraded:         t.degraded,
		SnapshotVersion:  t.result.SnapshotVersion,
	}
	if decision.Appended {
		debug.Booking = decision.Link
	}

	return &Response{
		SessionID:     t.sess.ID,
		Answer:        text,
		Context:       items,
		LockedContext: t.locked,
		Debug:         debug,
	}
}

// record writes the audit row and the turn log line. Audit failures never
// fail the turn.
func (p *Pipeline) record(ctx context.Context, t *turn, resp *Response, logger *observability.Logger) {
	latency := p.now().Sub(t.start)

	rec := &storage.TurnRecord{
		ID:            uuid.New(),
		SessionID:     t.sess.ID,
		RequestID:     observability.RequestIDFromContext(ctx),
		Query:         t.query,
		Intent:        string(t.parsed.Intent),
		Mode:          string(t.mode.mode),
		City:          t.locked.City,
		Area:          t.locked.Area,
		Vehicle:       t.locked.Vehicle,
		AnswerLength:  utf8.RuneCountInString(resp.Answer),
		LatencyMs:     latency.Milliseconds(),
		Emergency:     resp.EmergencyMode,
		LowConfidence: resp.Debug != nil && resp.Debug.LowConfidence,
		Degraded:      t.degraded,
		OccurredAt:    p.now(),
	}
	if t.result.ForceAdd != nil {
		rec.Rules = t.result.ForceAdd.Fired
	}
	if t.result.Assembly != nil {
		for _, sc := range t.result.Assembly.Chunks {
			rec.ChunkIDs = append(rec.ChunkIDs, sc.Chunk.ID)
		}
	}
	if err := p.audit.Record(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("audit record failed")
	}

	logger.Info().
		Str("intent", string(t.parsed.Intent)).
		Str("mode", string(t.mode.mode)).
		Str("mode_reason", t.mode.reason).
		Str("city", t.locked.City).
		Str("area", t.locked.Area).
		Str("vehicle", t.locked.Vehicle).
		Int("chunks", len(rec.ChunkIDs)).
		Bool("emergency", rec.Emergency).
		Bool("low_confidence", rec.LowConfidence).
		Bool("degraded", rec.Degraded).
		Dur("latency", latency).
		Msg("turn answered")
}

// parserFor returns a parser built from the snapshot's cities and areas,
// rebuilding it when the snapshot changes.
func (p *Pipeline) parserFor(snap *corpus.Snapshot) *intent.Parser {
	p.parserMu.Lock()
	defer p.parserMu.Unlock()
	if p.parserSnap != snap {
		p.parser = intent.NewParser(snap.Cities(), snap.Areas())
		p.parserSnap = snap
	}
	return p.parser
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
