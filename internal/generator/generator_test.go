package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// fakeCompleter replays scripted replies and records every request.
type fakeCompleter struct {
	mu       sync.Mutex
	replies  []*Message
	err      error
	requests []ChatRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req ChatRequest) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return &Message{Role: RoleAssistant}, nil
	}
	msg := f.replies[0]
	f.replies = f.replies[1:]
	return msg, nil
}

func newTestGenerator(fc *fakeCompleter, hour int) *Generator {
	tools := NewToolbox(nil, observability.NopLogger())
	tools.pick = func(int) int { return 0 }
	g := New(fc, tools, Config{}, observability.NopLogger())
	g.SetClock(func() time.Time { return time.Date(2026, 3, 2, hour, 15, 0, 0, time.UTC) })
	return g
}

func TestGreeting(t *testing.T) {
	tests := map[int]string{
		4:  "Hej! ",
		5:  "God morgon! ",
		9:  "God morgon! ",
		10: "Hej! ",
		16: "Hej! ",
		17: "God kväll! ",
		21: "God kväll! ",
		22: "Hej! ",
	}
	for hour, want := range tests {
		assert.Equal(t, want, Greeting(hour), "hour %d", hour)
	}
}

func TestSafeBold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Det kostar 695 kr per lektion.", "Det kostar **695 kr** per lektion."},
		{"Paketet kostar 12000kr", "Paketet kostar **12000 kr**"},
		{"Redan **695 kr** fetstilt", "Redan **695 kr** fetstilt"},
		{"Endast 50 kr", "Endast 50 kr"},
		{"499 KR och 850 kr", "**499 kr** och **850 kr**"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeBold(tt.in))
	}
}

func TestRefineMode(t *testing.T) {
	tests := []struct {
		q    string
		in   Mode
		want Mode
	}{
		{"berätta något roligt", ModeChat, ModeChat},
		{"vad kostar en lektion", ModeChat, ModeKnowledge},
		{"har ni mc", ModeChat, ModeKnowledge},
		{"jag gillar kameror", ModeChat, ModeChat},
		{"vad är det för väder, och pris?", ModeChat, ModeChat},
		{"hej", ModeKnowledge, ModeKnowledge},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			assert.Equal(t, tt.want, RefineMode(tt.in, tt.q))
		})
	}
}

func TestContactCard(t *testing.T) {
	ullevi := &corpus.Office{City: "Göteborg", Area: "Ullevi", Name: "Ullevi Trafikskola",
		Contact: corpus.Contact{Phone: "031-1", Email: "u@x.se", Address: "Ullevigatan 1"}}
	hogsbo := &corpus.Office{City: "Göteborg", Area: "Högsbo", Name: "Högsbo Trafikskola"}
	eslov := &corpus.Office{City: "Eslöv", Contact: corpus.Contact{Phone: "0413-1"},
		OpeningHours: []corpus.OpeningHours{{Days: "Mån-Fre", Hours: "08-17"}, {Days: "Lör", Hours: "10-14"}}}

	t.Run("single office", func(t *testing.T) {
		card := ContactCard([]*corpus.Office{eslov}, "Eslöv", "")
		assert.Contains(t, card, "Här har du kontaktuppgifterna till oss i Eslöv:")
		assert.Contains(t, card, "**Kontoret i Eslöv**")
		assert.Contains(t, card, "🕒 Öppettider: Mån-Fre: 08-17, Lör: 10-14")
		assert.Contains(t, card, "Ring oss gärna om du har frågor!")
	})

	t.Run("area match", func(t *testing.T) {
		card := ContactCard([]*corpus.Office{ullevi, hogsbo}, "Göteborg", "ullevi")
		assert.Contains(t, card, "(Göteborg - Ullevi)")
		assert.Contains(t, card, "**Ullevi Trafikskola**")
		assert.Contains(t, card, "📞 031-1")
	})

	t.Run("unknown area lists offices", func(t *testing.T) {
		card := ContactCard([]*corpus.Office{ullevi, hogsbo}, "Göteborg", "Lindholmen")
		assert.Contains(t, card, "Vi har flera kontor i Göteborg. Här är en lista:")
		assert.Contains(t, card, "* **Högsbo**: Se hemsida")
	})

	t.Run("no area lists offices", func(t *testing.T) {
		card := ContactCard([]*corpus.Office{ullevi, hogsbo}, "Göteborg", "")
		assert.Contains(t, card, "Vi har 2 kontor i Göteborg. Användaren måste välja ett:")
		assert.Contains(t, card, "* **Ullevi**: 031-1")
		assert.Contains(t, card, "Fråga vilket kontor de undrar över.")
	})

	t.Run("no city", func(t *testing.T) {
		assert.Empty(t, ContactCard([]*corpus.Office{ullevi}, "", ""))
	})
}

func TestGenerate_Knowledge(t *testing.T) {
	snap := corpustest.Load(t)
	fc := &fakeCompleter{replies: []*Message{{Role: RoleAssistant, Content: "En körlektion kostar 695 kr."}}}
	g := newTestGenerator(fc, 8)

	ans, err := g.Generate(context.Background(), Request{
		Question:     "Vad kostar körlektion bil?",
		Context:      "Körlektion BIL i Göteborg - Ullevi: Körlektion BIL kostar 695 SEK.",
		City:         "Göteborg",
		FirstMessage: true,
		Snapshot:     snap,
	})
	require.NoError(t, err)
	assert.Equal(t, "God morgon! En körlektion kostar **695 kr**.", ans.Text)
	assert.Equal(t, ModeKnowledge, ans.Mode)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, 700, req.MaxTokens)
	assert.Empty(t, req.Tools)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, `Börja alltid svaret med EXAKT: "God morgon! "`)
	assert.Contains(t, req.Messages[0].Content, "I Göteborg erbjuder vi")
	assert.Contains(t, req.Messages[0].Content, "**Mårtenssons Trafikskola Ullevi**")
	assert.Equal(t, "Fråga: Vad kostar körlektion bil?\n\nKONTEKST:\nKörlektion BIL i Göteborg - Ullevi: Körlektion BIL kostar 695 SEK.", req.Messages[1].Content)
}

func TestGenerate_KnowledgeEdgeCases(t *testing.T) {
	t.Run("greeting not repeated", func(t *testing.T) {
		fc := &fakeCompleter{replies: []*Message{{Content: "God kväll! Välkommen."}}}
		ans, err := newTestGenerator(fc, 18).Generate(context.Background(), Request{Question: "q", FirstMessage: true})
		require.NoError(t, err)
		assert.Equal(t, "God kväll! Välkommen.", ans.Text)
	})

	t.Run("empty answer", func(t *testing.T) {
		fc := &fakeCompleter{replies: []*Message{{Content: " "}}}
		ans, err := newTestGenerator(fc, 12).Generate(context.Background(), Request{Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, NoInfoAnswer, ans.Text)
		assert.Contains(t, fc.requests[0].Messages[0].Content, "Hälsa aldrig - gå rakt på sak.")
	})

	t.Run("completer error", func(t *testing.T) {
		fc := &fakeCompleter{err: errors.New("timeout")}
		_, err := newTestGenerator(fc, 12).Generate(context.Background(), Request{Question: "q"})
		assert.Error(t, err)
	})
}

func TestGenerate_ChatToolRoundTrip(t *testing.T) {
	fc := &fakeCompleter{replies: []*Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Type: "function", Function: FunctionCall{Name: toolJoke, Arguments: "{}"}}}},
		{Role: RoleAssistant, Content: "Här kommer ett skämt!"},
	}}
	g := newTestGenerator(fc, 12)

	ans, err := g.Generate(context.Background(), Request{Question: "Berätta ett skämt", Mode: ModeChat})
	require.NoError(t, err)
	assert.Equal(t, "Här kommer ett skämt!", ans.Text)
	assert.Equal(t, []string{toolJoke}, ans.Tools)

	require.Len(t, fc.requests, 2)
	first := fc.requests[0]
	assert.Equal(t, 0.7, first.Temperature)
	assert.Equal(t, 600, first.MaxTokens)
	assert.Len(t, first.Tools, 4)
	require.NotNil(t, first.ToolChoice)
	assert.Equal(t, toolJoke, first.ToolChoice.Function.Name)
	assert.Contains(t, first.Messages[1].Content, "You MUST call get_joke tool")

	second := fc.requests[1]
	assert.Empty(t, second.Tools)
	require.Len(t, second.Messages, 4)
	assert.Equal(t, RoleAssistant, second.Messages[2].Role)
	tool := second.Messages[3]
	assert.Equal(t, RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.JSONEq(t, `{"joke":"`+jokes[0]+`"}`, tool.Content)
}

func TestGenerate_ChatWithoutTools(t *testing.T) {
	t.Run("plain answer", func(t *testing.T) {
		fc := &fakeCompleter{replies: []*Message{{Content: "Trevligt att höras!"}}}
		ans, err := newTestGenerator(fc, 12).Generate(context.Background(), Request{Question: "hur mår du", Mode: ModeChat})
		require.NoError(t, err)
		assert.Equal(t, "Trevligt att höras!", ans.Text)
		assert.Nil(t, fc.requests[0].ToolChoice)
		assert.Len(t, fc.requests[0].Tools, 4)
	})

	t.Run("empty answer", func(t *testing.T) {
		fc := &fakeCompleter{}
		ans, err := newTestGenerator(fc, 12).Generate(context.Background(), Request{Question: "hur mår du", Mode: ModeChat})
		require.NoError(t, err)
		assert.Equal(t, ChatIdleAnswer, ans.Text)
	})

	t.Run("empty follow-up", func(t *testing.T) {
		fc := &fakeCompleter{replies: []*Message{
			{ToolCalls: []ToolCall{{ID: "c", Function: FunctionCall{Name: toolQuote}}}},
			{Content: ""},
		}}
		ans, err := newTestGenerator(fc, 12).Generate(context.Background(), Request{Question: "ge mig ett citat", Mode: ModeChat})
		require.NoError(t, err)
		assert.Equal(t, TechnicalFailure, ans.Text)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply *Message
		err   error
		want  Mode
	}{
		{name: "chat", reply: &Message{Content: "chat"}, want: ModeChat},
		{name: "knowledge", reply: &Message{Content: "knowledge"}, want: ModeKnowledge},
		{name: "unclear", reply: &Message{Content: "kanske"}, want: ModeKnowledge},
		{name: "error", err: errors.New("boom"), want: ModeKnowledge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{err: tt.err}
			if tt.reply != nil {
				fc.replies = []*Message{tt.reply}
			}
			assert.Equal(t, tt.want, newTestGenerator(fc, 12).Classify(context.Background(), "hej"))
			assert.Equal(t, 0.0, fc.requests[0].Temperature)
		})
	}
}

func TestToolbox_Run(t *testing.T) {
	snap := corpustest.Load(t)
	tools := NewToolbox(nil, observability.NopLogger())
	tools.pick = func(int) int { return 1 }
	ctx := context.Background()

	tests := []struct {
		name string
		call ToolCall
		want string
	}{
		{"quote", ToolCall{ID: "1", Function: FunctionCall{Name: toolQuote}}, `{"quote":"` + quotes[1] + `"}`},
		{"unknown tool", ToolCall{ID: "2", Function: FunctionCall{Name: "generate_image"}}, `{"error":"Okänt verktyg: generate_image"}`},
		{"explicit unit price", ToolCall{ID: "3", Function: FunctionCall{Name: toolCalculate, Arguments: `{"amount":10,"unit_price":695}`}}, `{"total":6950,"unit_price":695}`},
		{"resolved unit price", ToolCall{ID: "4", Function: FunctionCall{Name: toolCalculate, Arguments: `{"amount":3,"service":"Körlektion BIL","city":"gbg"}`}}, `{"total":2085,"unit_price":695,"source":"city_median"}`},
		{"malformed args", ToolCall{ID: "5", Function: FunctionCall{Name: toolCalculate, Arguments: `{amount:`}}, `{"error":"Kunde inte köra calculate_price"}`},
		{"weather without client", ToolCall{ID: "6", Function: FunctionCall{Name: toolWeather, Arguments: `{"city":"Malmö"}`}}, `{"error":"OpenWeather API-nyckel saknas"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tools.Run(ctx, tt.call, Request{Snapshot: snap})
			assert.Equal(t, RoleTool, msg.Role)
			assert.Equal(t, tt.call.ID, msg.ToolCallID)
			assert.JSONEq(t, tt.want, msg.Content)
		})
	}
}

func TestWeatherClient_Current(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "sv", r.URL.Query().Get("lang"))
		if gotQuery == "Atlantis,SE" {
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"cod":200,"name":"Göteborg","main":{"temp":6.6},"weather":[{"description":"mulet"}]}`))
	}))
	defer srv.Close()

	w := NewWeatherClient(WeatherConfig{BaseURL: srv.URL, APIKey: "k"})
	ctx := context.Background()

	got := w.Current(ctx, "gbg")
	assert.Equal(t, "Göteborg,SE", gotQuery)
	assert.Equal(t, WeatherReport{City: "Göteborg", Temperature: 7, Description: "mulet"}, got)

	w.Current(ctx, "")
	assert.Equal(t, "Stockholm,SE", gotQuery)

	assert.Equal(t, errorResult{Error: "Kunde inte hämta väder för Atlantis"}, w.Current(ctx, "Atlantis"))

	noKey := NewWeatherClient(WeatherConfig{BaseURL: srv.URL})
	assert.Equal(t, errorResult{Error: "OpenWeather API-nyckel saknas"}, noKey.Current(ctx, "Malmö"))

	srv.Close()
	assert.Equal(t, errorResult{Error: "Väder-API:t svarar inte"}, w.Current(ctx, "Malmö"))
}

func TestWeatherReportJSON(t *testing.T) {
	data, err := json.Marshal(WeatherReport{City: "Lund", Temperature: 3, Description: "regn"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Lund","temperature":3,"description":"regn"}`, string(data))
}
