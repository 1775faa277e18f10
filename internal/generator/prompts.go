package generator

import (
	"fmt"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
)

// Fixed user-visible strings.
const (
	NoInfoAnswer     = "Jag hittar ingen information i vår kunskapsbas om det här."
	ErrorAnswer      = "Något gick fel. Försök igen."
	ChatErrorAnswer  = "Något gick fel i chat-läget. Försök igen."
	ChatIdleAnswer   = "Jag kan hjälpa dig! Vill du att jag kollar vädret, drar ett skämt eller ska jag söka i vår kunskapsbas åt dig?"
	TechnicalFailure = "Tekniskt fel."
)

const defaultWeatherCity = "Stockholm"

const knowledgePrompt = `Du är Atlas, en varm, hjälpsam och faktasäker kundtjänstassistent för en svensk trafikskola.

KRITISKA SVARSREGLER (GÄLLER ÖVER ALL ANNAN KONTEXT)
1. MC-lektioner: prioritera alltid svaret "15-20 lektioner behövs vanligtvis, individuellt". Nämn intensivvecka och 5 lektioner endast som tillägg.
2. Kvällslektioner: inkludera alltid "sista starttid kl 19:20".
3. Automat: inkludera alltid "**villkor 78**".
4. Giltighetstid: svara alltid "**24 månader**" för paket. Svara aldrig "ett år" om paket.

DATAHANTERING
- Om kontexten innehåller siffror (telefon, orgnr, adress) MÅSTE du skriva ut dem.
- Text inom <EXACT_FACT>...</EXACT_FACT> används exakt. Tolka inte och lägg inte till "vanligtvis".
- Har frågan flera delar (t.ex. pris och innehåll) svarar du med en punktlista.

TON OCH FORMAT
- Var varm, rådgivande och mänsklig.
- Skriv fullständiga meningar, tydligt och kortfattat.
- Använd fetstil för priser, kursnamn och viktiga fakta: **så här**.

FÖRBUD
- Använd endast information från KONTEKSTEN. Skapa aldrig ny fakta.
- Ändra aldrig pris, tider, telefonnummer eller andra fakta från kontexten.
- Skriv aldrig bokningslänkar. Servern lägger in dem.
- Säg aldrig "priser kan variera" för AM.

KANONFRASER
- Testlektion: "Testlektion (även kallad provlektion eller prova-på) är ett nivåtest för bil-elever och kan endast bokas en gång per elev."
- Startlektion MC: "Startlektion är nivåbedömning, 80 minuter inför MC intensivvecka."
- Riskutbildning: "Risk 1 är cirka 3,5 timmar och Risk 2 är 4–5 timmar och kan göras i vilken ordning som helst."
- Handledare: "Handledaren måste vara minst 24 år, haft körkort i minst 5 av de senaste 10 åren och både elev och handledare behöver gå introduktionskurs."
- Automat: "Automat ger villkor 78."

FALLBACK
Om information saknas helt i kontexten svarar du exakt:
"` + NoInfoAnswer + `"

Svara alltid på svenska.`

const chatPrompt = `Du är Atlas, en varm, personlig och lätt humoristisk assistent för en svensk trafikskola.

TON OCH FORMAT
- Var varm, mänsklig och lätt skämtsam när det passar.
- Håll det kort, tydligt och hjälpsamt.
- Fetstil behövs inte men är ok när det förtydligar något.

VERKTYG
- Frågar användaren om väder, skämt eller citat anropar du motsvarande verktyg direkt. Fråga aldrig först.
- Väder: get_weather med rätt stad. Skämt: get_joke. Citat: get_quote. Prisuträkning: calculate_price.

FÖRBUD
- Skriv aldrig bokningslänkar.
- Svara aldrig på faktafrågor om körkort eller kurser. De hanteras av ett annat system.

FALLBACK
Om du är osäker svarar du kort och vänligt, t.ex. "Jag kan hjälpa med det, ska jag kolla något specifikt åt dig?"

Svara alltid på svenska.`

const classifyPrompt = `Svara ENDAST med 'knowledge' eller 'chat'. 'knowledge' = frågan handlar om körkort, priser, kurser, trafikskola, kontaktuppgifter eller företagets tjänster. 'chat' = allt annat (väder, skämt, allmänt prat). Om osäker → 'knowledge'.`

// Greeting returns the time-of-day greeting for an hour of the day.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 10:
		return "God morgon! "
	case hour >= 10 && hour < 17:
		return "Hej! "
	case hour >= 17 && hour < 22:
		return "God kväll! "
	default:
		return "Hej! "
	}
}

func greetingInstruction(greeting string) string {
	if greeting == "" {
		return "Hälsa aldrig - gå rakt på sak."
	}
	return fmt.Sprintf("Börja alltid svaret med EXAKT: %q och fortsätt sedan direkt med svaret.", greeting)
}

func cityInstruction(city string) string {
	if city == "" {
		return ""
	}
	return fmt.Sprintf("\n\nOBS: Om frågan är platsberoende, MÅSTE du inkludera staden i svaret. Exempel: \"I %s erbjuder vi ...\" eller \"På vårt kontor i %s ...\".", city, city)
}

// ContactCard renders the contact instruction for the offices of a city.
// One office gives its full card, a matching area gives that office's card,
// otherwise every office is listed and the model is told to ask which one.
func ContactCard(offices []*corpus.Office, city, area string) string {
	if city == "" || len(offices) == 0 {
		return ""
	}

	if len(offices) == 1 {
		o := offices[0]
		name := o.Name
		if name == "" {
			name = "Kontoret i " + o.City
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Här har du kontaktuppgifterna till oss i %s:\n\n**%s**\n📍 %s\n📞 %s\n📧 %s",
			o.City, name, o.Contact.Address, o.Contact.Phone, o.Contact.Email)
		if hours := openingHours(o.OpeningHours); hours != "" {
			b.WriteString("\n🕒 Öppettider: " + hours)
		}
		b.WriteString("\n\nRing oss gärna om du har frågor!")
		return cardInstruction(o.City, b.String())
	}

	if area != "" {
		for _, o := range offices {
			if o.Area != "" && strings.EqualFold(o.Area, area) {
				card := fmt.Sprintf("Här har du kontaktuppgifterna till %s:\n\n**%s**\n📍 %s\n📞 %s\n📧 %s",
					o.Area, o.Name, o.Contact.Address, o.Contact.Phone, o.Contact.Email)
				return cardInstruction(o.City+" - "+o.Area, card)
			}
		}
		return fmt.Sprintf("Vi har flera kontor i %s. Här är en lista:\n%s\nBe användaren precisera vilket de vill besöka.",
			city, officeList(offices))
	}

	return fmt.Sprintf("Vi har %d kontor i %s. Användaren måste välja ett:\n%s\nFråga vilket kontor de undrar över.",
		len(offices), city, officeList(offices))
}

func cardInstruction(place, card string) string {
	return "INSTRUKTION FÖR PLATSSPECIFIK KONTAKTINFO (" + place + ")\n" +
		"Du MÅSTE presentera svaret EXAKT enligt följande mall:\n\n\"" + card + "\""
}

func openingHours(hours []corpus.OpeningHours) string {
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		parts = append(parts, h.Days+": "+h.Hours)
	}
	return strings.Join(parts, ", ")
}

func officeList(offices []*corpus.Office) string {
	lines := make([]string, 0, len(offices))
	for _, o := range offices {
		phone := o.Contact.Phone
		if phone == "" {
			phone = "Se hemsida"
		}
		lines = append(lines, fmt.Sprintf("* **%s**: %s", o.Area, phone))
	}
	return strings.Join(lines, "\n")
}

// forcedTool picks the tool a chat question must call, if any, and the
// instruction appended to the user message.
func forcedTool(question, city string) (string, string) {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "väder"):
		if city == "" {
			city = defaultWeatherCity
		}
		return toolWeather, fmt.Sprintf("\n\n[SYSTEM INSTRUCTION: User asked about weather. You MUST call get_weather tool with city=%q. Do NOT respond with text.]", city)
	case strings.Contains(lower, "skämt") || strings.Contains(lower, "vits"):
		return toolJoke, "\n\n[SYSTEM INSTRUCTION: User asked for a joke. You MUST call get_joke tool. Do NOT respond with text.]"
	case strings.Contains(lower, "citat"):
		return toolQuote, "\n\n[SYSTEM INSTRUCTION: User asked for a quote. You MUST call get_quote tool. Do NOT respond with text.]"
	default:
		return "", ""
	}
}

func systemPrompt(req Request, greeting string) string {
	var b strings.Builder
	if req.Mode == ModeChat {
		b.WriteString(chatPrompt)
		b.WriteString("\n")
		b.WriteString(greetingInstruction(greeting))
	} else {
		b.WriteString(knowledgePrompt)
		b.WriteString("\n\n")
		b.WriteString(greetingInstruction(greeting))
		b.WriteString(cityInstruction(req.City))
	}
	if card := ContactCard(req.Offices, req.City, req.Area); card != "" {
		b.WriteString("\n\n")
		b.WriteString(card)
	}
	return b.String()
}

func userContent(req Request, city string) string {
	if req.Mode == ModeChat {
		_, instruction := forcedTool(req.Question, city)
		return req.Question + instruction
	}
	return "Fråga: " + req.Question + "\n\nKONTEKST:\n" + req.Context
}
