package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pricing"
)

const (
	toolWeather   = "get_weather"
	toolJoke      = "get_joke"
	toolQuote     = "get_quote"
	toolCalculate = "calculate_price"
)

var jokes = []string{
	"Varför kör MC-förare alltid så snabbt? För att hålla sig varma!",
	"Varför välter inte motorcyklar? För att de är tvåhjuliga med balans i blodet!",
}

var quotes = []string{
	"Den bästa tiden att börja var igår. Den näst bästa är idag.",
	"Framgång kommer av små steg tagna varje dag.",
	"Gör ditt bästa idag – framtiden tackar dig.",
}

var toolSpecs = []ToolSpec{
	{Type: "function", Function: FunctionSpec{
		Name:        toolWeather,
		Description: "Hämtar väder för en svensk stad.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"city":{"type":"string","description":"Stad i Sverige"}},"required":["city"]}`),
	}},
	{Type: "function", Function: FunctionSpec{
		Name:        toolJoke,
		Description: "Returnerar ett slumpmässigt skämt.",
	}},
	{Type: "function", Function: FunctionSpec{
		Name:        toolQuote,
		Description: "Returnerar ett inspirerande citat.",
	}},
	{Type: "function", Function: FunctionSpec{
		Name:        toolCalculate,
		Description: "Räknar ut totalpris. Utan unit_price slås priset upp för service i city.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"amount":{"type":"number"},"unit_price":{"type":"number"},"service":{"type":"string"},"city":{"type":"string"}},"required":["amount"]}`),
	}},
}

// errorResult is the JSON body returned to the model when a tool fails.
type errorResult struct {
	Error string `json:"error"`
}

// WeatherReport is the get_weather result.
type WeatherReport struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Description string `json:"description"`
}

// WeatherConfig holds OpenWeather settings.
type WeatherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WeatherClient fetches current weather from OpenWeather.
type WeatherClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewWeatherClient creates a weather client. An empty key is allowed; calls
// then report the missing key to the model.
func NewWeatherClient(cfg WeatherConfig) *WeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org/data/2.5"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WeatherClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

type openWeatherResponse struct {
	Cod  json.RawMessage `json:"cod"`
	Name string          `json:"name"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Current returns the weather for a Swedish city. Failures are reported as
// an error result so the model can explain them.
func (w *WeatherClient) Current(ctx context.Context, city string) any {
	target := intent.CanonicalCity(city)
	if target == "" {
		target = defaultWeatherCity
	}
	if w.apiKey == "" {
		return errorResult{Error: "OpenWeather API-nyckel saknas"}
	}

	q := url.Values{}
	q.Set("q", target+",SE")
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "sv")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return errorResult{Error: "Väder-API:t svarar inte"}
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return errorResult{Error: "Väder-API:t svarar inte"}
	}
	defer resp.Body.Close()

	var data openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return errorResult{Error: "Väder-API:t svarar inte"}
	}
	if strings.Trim(string(data.Cod), `"`) != "200" || len(data.Weather) == 0 {
		return errorResult{Error: fmt.Sprintf("Kunde inte hämta väder för %s", target)}
	}

	return WeatherReport{
		City:        data.Name,
		Temperature: int(math.Round(data.Main.Temp)),
		Description: data.Weather[0].Description,
	}
}

type weatherArgs struct {
	City string `json:"city"`
}

type priceArgs struct {
	Amount    float64 `json:"amount"`
	UnitPrice float64 `json:"unit_price"`
	Service   string  `json:"service"`
	City      string  `json:"city"`
}

type priceResult struct {
	Total     float64 `json:"total"`
	UnitPrice float64 `json:"unit_price"`
	Source    string  `json:"source,omitempty"`
}

// Toolbox runs the model's tool calls.
type Toolbox struct {
	weather *WeatherClient
	pick    func(n int) int
	logger  *observability.Logger
}

// NewToolbox creates a toolbox. A nil weather client disables get_weather.
func NewToolbox(weather *WeatherClient, logger *observability.Logger) *Toolbox {
	return &Toolbox{
		weather: weather,
		pick:    rand.Intn,
		logger:  logger.WithComponent("tools"),
	}
}

// Specs returns the tool declarations sent to the model.
func (t *Toolbox) Specs() []ToolSpec {
	return toolSpecs
}

// Run executes one call and returns the tool message for the follow-up
// request. Malformed arguments are treated as empty.
func (t *Toolbox) Run(ctx context.Context, call ToolCall, req Request) Message {
	name := call.Function.Name
	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 || !json.Valid(args) {
		if len(args) > 0 {
			t.logger.Warn().Str("tool", name).Msg("malformed tool arguments, using {}")
		}
		args = json.RawMessage(`{}`)
	}

	result, err := t.call(ctx, name, args, req)
	if err != nil {
		t.logger.Warn().Str("tool", name).Err(err).Msg("tool failed")
		if errors.Is(err, errUnknownTool) {
			result = errorResult{Error: "Okänt verktyg: " + name}
		} else {
			result = errorResult{Error: "Kunde inte köra " + name}
		}
	}

	content, err := json.Marshal(result)
	if err != nil {
		content = []byte(`{"error":"Kunde inte köra ` + name + `"}`)
	}

	return Message{Role: RoleTool, ToolCallID: call.ID, Content: string(content)}
}

var errUnknownTool = errors.New("unknown tool")

func (t *Toolbox) call(ctx context.Context, name string, args json.RawMessage, req Request) (any, error) {
	switch name {
	case toolWeather:
		var a weatherArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if t.weather == nil {
			return errorResult{Error: "OpenWeather API-nyckel saknas"}, nil
		}
		return t.weather.Current(ctx, a.City), nil
	case toolJoke:
		return map[string]string{"joke": jokes[t.pick(len(jokes))]}, nil
	case toolQuote:
		return map[string]string{"quote": quotes[t.pick(len(quotes))]}, nil
	case toolCalculate:
		var a priceArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		return calculatePrice(a, req)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

// calculatePrice multiplies amount by unit_price, resolving the unit price
// from the corpus when the model did not give one.
func calculatePrice(a priceArgs, req Request) (any, error) {
	if a.UnitPrice > 0 {
		return priceResult{Total: a.Amount * a.UnitPrice, UnitPrice: a.UnitPrice}, nil
	}
	if req.Snapshot == nil || a.Service == "" {
		return nil, fmt.Errorf("calculate_price: unit_price missing")
	}

	city := a.City
	if city == "" {
		city = req.City
	}
	quote, err := pricing.NewResolver(req.Snapshot).Resolve(pricing.Request{
		City:    intent.CanonicalCity(city),
		Office:  req.Area,
		Service: a.Service,
	})
	if err != nil {
		return nil, err
	}

	return priceResult{
		Total:     a.Amount * quote.Amount,
		UnitPrice: quote.Amount,
		Source:    string(quote.Source),
	}, nil
}

// officesFor returns the offices of the request's city.
func officesFor(snap *corpus.Snapshot, city string) []*corpus.Office {
	if snap == nil || city == "" {
		return nil
	}
	return snap.OfficesIn(city, "")
}
