package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

// Mode selects the prompt, sampling and tools of a generation.
type Mode string

const (
	ModeKnowledge Mode = "knowledge"
	ModeChat      Mode = "chat"
)

// Request is one answer generation.
type Request struct {
	Question     string
	Context      string
	City         string
	Area         string
	FirstMessage bool
	Mode         Mode
	// Offices feeds the contact card. When nil the offices of City are
	// read from Snapshot.
	Offices  []*corpus.Office
	Snapshot *corpus.Snapshot
}

// Answer is a generated answer.
type Answer struct {
	Text     string
	Mode     Mode
	Greeting string
	Tools    []string
}

// Config holds generator settings.
type Config struct {
	Model           string
	Timeout         time.Duration
	ClassifyTimeout time.Duration
}

// Generator classifies turns and produces answers.
type Generator struct {
	completer Completer
	tools     *Toolbox
	config    Config
	logger    *observability.Logger
	now       func() time.Time

	classifyCache *ClassifyCache
}

// New creates a generator. Zero config values take the defaults.
func New(completer Completer, tools *Toolbox, cfg Config, logger *observability.Logger) *Generator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 15 * time.Second
	}
	if tools == nil {
		tools = NewToolbox(nil, logger)
	}
	return &Generator{
		completer: completer,
		tools:     tools,
		config:    cfg,
		logger:    logger.WithComponent("generator"),
		now:       time.Now,
	}
}

// SetClassifyCache memoizes classifications. A nil cache disables it.
func (g *Generator) SetClassifyCache(c *ClassifyCache) {
	g.classifyCache = c
}

// SetClock replaces the clock used for greetings.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Classify asks the model whether a question is for the knowledge base or
// free chat. Any failure or unclear reply means knowledge.
func (g *Generator) Classify(ctx context.Context, question string) Mode {
	if mode, ok := g.classifyCache.Get(ctx, g.config.Model, question); ok {
		return mode
	}

	mode, err := g.classify(ctx, question)
	if err != nil {
		g.logger.WithContext(ctx).Warn().Err(err).Msg("classification failed, defaulting to knowledge")
		return ModeKnowledge
	}
	_ = g.classifyCache.Set(ctx, g.config.Model, question, mode)
	return mode
}

func (g *Generator) classify(ctx context.Context, question string) (Mode, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.ClassifyTimeout)
	defer cancel()

	msg, err := g.completer.Complete(ctx, ChatRequest{
		Model: g.config.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: classifyPrompt},
			{Role: RoleUser, Content: question},
		},
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	if strings.Contains(strings.ToLower(msg.Content), "chat") {
		return ModeChat, nil
	}
	return ModeKnowledge, nil
}

var (
	knowledgeTerms = []string{"pris", "kostar", "körkort", "paket", "lektion", "riskettan", "risktvåan"}
	vehicleWords   = []string{"am", "mc", "bil"}
	chatTerms      = []string{"väder", "skämt", "citat", "bild", "rita", "generera", "vits"}
)

// RefineMode pulls a chat turn back to knowledge when it is about prices,
// licences or lessons, unless it also asks for a tool.
func RefineMode(mode Mode, question string) Mode {
	if mode != ModeChat {
		return mode
	}
	lower := strings.ToLower(question)
	if textutil.ContainsAny(lower, chatTerms...) {
		return ModeChat
	}
	if textutil.ContainsAny(lower, knowledgeTerms...) {
		return ModeKnowledge
	}
	if textutil.ContainsAnyWord(textutil.Normalize(question), vehicleWords...) {
		return ModeKnowledge
	}
	return ModeChat
}

// Generate produces an answer. Chat turns may run one round of tool calls
// followed by exactly one follow-up request.
func (g *Generator) Generate(ctx context.Context, req Request) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if req.Mode == "" {
		req.Mode = ModeKnowledge
	}
	if req.Offices == nil {
		req.Offices = officesFor(req.Snapshot, req.City)
	}

	greeting := ""
	if req.FirstMessage {
		greeting = Greeting(g.now().Hour())
	}

	messages := []Message{
		{Role: RoleSystem, Content: systemPrompt(req, greeting)},
		{Role: RoleUser, Content: userContent(req, req.City)},
	}

	if req.Mode == ModeChat {
		return g.chat(ctx, req, messages, greeting)
	}

	msg, err := g.completer.Complete(ctx, ChatRequest{
		Model:       g.config.Model,
		Messages:    messages,
		MaxTokens:   700,
		Temperature: 0,
		TopP:        1,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge answer: %w", err)
	}

	text := strings.TrimSpace(msg.Content)
	if greeting != "" && !strings.HasPrefix(strings.ToLower(text), strings.ToLower(strings.TrimSpace(greeting))) {
		text = greeting + text
	}
	if len([]rune(text)) < 2 {
		text = NoInfoAnswer
	}

	return &Answer{Text: SafeBold(text), Mode: ModeKnowledge, Greeting: greeting}, nil
}

func (g *Generator) chat(ctx context.Context, req Request, messages []Message, greeting string) (*Answer, error) {
	creq := ChatRequest{
		Model:       g.config.Model,
		Messages:    messages,
		MaxTokens:   600,
		Temperature: 0.7,
		TopP:        1,
		Tools:       g.tools.Specs(),
	}
	if name, _ := forcedTool(req.Question, req.City); name != "" {
		creq.ToolChoice = ForceTool(name)
	}

	msg, err := g.completer.Complete(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("chat answer: %w", err)
	}

	answer := &Answer{Mode: ModeChat, Greeting: greeting}

	if len(msg.ToolCalls) == 0 {
		answer.Text = strings.TrimSpace(msg.Content)
		if answer.Text == "" {
			answer.Text = ChatIdleAnswer
		}
		return answer, nil
	}

	followUp := append(append([]Message(nil), messages...), Message{
		Role:      RoleAssistant,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	})
	for _, call := range msg.ToolCalls {
		answer.Tools = append(answer.Tools, call.Function.Name)
		followUp = append(followUp, g.tools.Run(ctx, call, req))
	}

	g.logger.WithContext(ctx).Debug().Strs("tools", answer.Tools).Msg("running follow-up after tool calls")

	final, err := g.completer.Complete(ctx, ChatRequest{
		Model:       g.config.Model,
		Messages:    followUp,
		MaxTokens:   600,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("tool follow-up: %w", err)
	}

	answer.Text = strings.TrimSpace(final.Content)
	if answer.Text == "" {
		answer.Text = TechnicalFailure
	}
	return answer, nil
}

// FailureAnswer is the apology shown when generation fails in mode.
func FailureAnswer(mode Mode) string {
	if mode == ModeChat {
		return ChatErrorAnswer
	}
	return ErrorAnswer
}

var priceRe = regexp.MustCompile(`(?i)(\d{3,5})\s?kr`)

// SafeBold bolds amounts written as "<digits> kr". Amounts already wrapped
// in ** are left alone.
func SafeBold(s string) string {
	matches := priceRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if strings.HasSuffix(s[:start], "**") && strings.HasPrefix(s[end:], "**") {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString("**" + s[m[2]:m[3]] + " kr**")
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}
