package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/generator"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

var (
	toolKeywords = []string{"väder", "skämt", "citat", "bild", "rita", "generera", "vits"}
	ragBlockers  = []string{"köra", "körkort", "lektion", "kurs", "risk", "handledare", "avboka", "pris", "telefon", "kontakt", "adress", "öppettider", "mail", "mejl"}
	// Short blockers only count as whole words.
	ragBlockerWords = []string{"am", "mc"}
	placeVerbs      = []string{"har", "finns"}

	strongRAG   = regexp.MustCompile(`kostar|pris|boka|paket`)
	priceTalkRe = regexp.MustCompile(`(?i)pris|kostar|kostnad`)
)

// modeInput is what the mode decision looks at.
type modeInput struct {
	query  string
	parsed intent.Result
	// savedCity and savedVehicle are the session context before this turn.
	savedCity    string
	savedVehicle string
	// previous is the user's previous message.
	previous string
}

// modeDecision is the chosen mode and why.
type modeDecision struct {
	mode   generator.Mode
	reason string
	// inherited is set when the turn continues an earlier price question.
	inherited bool
}

// forcedMode applies the deterministic rules. ok is false when the model
// has to classify the turn.
func forcedMode(in modeInput) (modeDecision, bool) {
	q := strings.ToLower(in.query)
	isTool := textutil.ContainsAny(q, toolKeywords...)

	if isTool && !hasStrongRAGIntent(q) {
		return modeDecision{mode: generator.ModeChat, reason: "tool-query"}, true
	}

	if in.savedVehicle != "" && in.savedCity != "" && in.parsed.Extracted.Area != "" &&
		in.parsed.Intent == intent.Unknown && priceTalkRe.MatchString(in.previous) {
		return modeDecision{mode: generator.ModeKnowledge, reason: "area-after-price", inherited: true}, true
	}

	norm := textutil.Normalize(in.query)
	switch {
	case in.parsed.Intent == intent.Contact:
		return modeDecision{mode: generator.ModeKnowledge, reason: "contact"}, true
	case in.parsed.Intent == intent.Price:
		return modeDecision{mode: generator.ModeKnowledge, reason: "price"}, true
	case isTool && (textutil.ContainsAny(q, ragBlockers...) || textutil.ContainsAnyWord(norm, ragBlockerWords...)):
		return modeDecision{mode: generator.ModeKnowledge, reason: "tool-and-rag-terms"}, true
	case isTool:
		return modeDecision{mode: generator.ModeChat, reason: "tool-keyword"}, true
	case textutil.ContainsAnyWord(norm, placeVerbs...) && (in.parsed.Slots.City != "" || in.parsed.Slots.Area != ""):
		return modeDecision{mode: generator.ModeKnowledge, reason: "har-finns-place"}, true
	}
	return modeDecision{}, false
}

// hasStrongRAGIntent reports price or booking language. "kurs" and
// "lektion" only count when "väder" does not follow them.
func hasStrongRAGIntent(q string) bool {
	if strongRAG.MatchString(q) {
		return true
	}
	for _, term := range []string{"kurs", "lektion"} {
		if i := strings.LastIndex(q, term); i >= 0 && !strings.Contains(q[i:], "väder") {
			return true
		}
	}
	return false
}

// chooseMode runs the deterministic rules, falls back to the classifier and
// finally sends every weather question to chat.
func chooseMode(ctx context.Context, gen Generator, in modeInput) modeDecision {
	d, ok := forcedMode(in)
	if !ok {
		d = modeDecision{mode: gen.Classify(ctx, in.query), reason: "classifier"}
	}

	if in.parsed.Intent == intent.Weather {
		d.mode = generator.ModeChat
		d.reason = "weather"
	}

	if refined := generator.RefineMode(d.mode, in.query); refined != d.mode {
		d.mode = refined
		d.reason += "+refined"
	}
	return d
}
