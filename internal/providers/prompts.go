package providers

import (
	"fmt"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// Operation names, used for logging and by the mock backend.
const (
	OpFetchScripture = "fetch_scripture"
	OpKeyTakeaway    = "key_takeaway"
	OpScore          = "score"
	OpValidate       = "validate_takeaway"
	OpSearch         = "search_verses"
	OpPing           = "ping"
)

// Request is one prompt sent to an LLM backend.
type Request struct {
	Operation string
	Prompt    string
	JSON      bool
	MaxTokens int
}

func scripturePrompt(ref models.VerseRef, translation string) Request {
	if translation == "" {
		translation = "ESV"
	}
	return Request{
		Operation: OpFetchScripture,
		JSON:      true,
		MaxTokens: 2048,
		Prompt: fmt.Sprintf(`Return the exact text of %s in the %s translation.
Respond only with JSON: {"verses": [{"number": <verse number>, "text": "<verse text>"}]}.
Include one entry per verse, in order, without headings or footnotes.`, ref.String(), translation),
	}
}

func takeawayPrompt(ref string) Request {
	return Request{
		Operation: OpKeyTakeaway,
		MaxTokens: 300,
		Prompt: fmt.Sprintf(`In one or two sentences, state the key takeaway of %s as it is understood in its context.
Respond with the takeaway text only.`, ref),
	}
}

func scorePrompt(ref, directQuote, application string) Request {
	return Request{
		Operation: OpScore,
		JSON:      true,
		MaxTokens: 800,
		Prompt: fmt.Sprintf(`A user is memorizing %s.
Their quote of the passage: %q
Their application of it to their life: %q

Score from 0 to 100 how faithful the application is to the passage's context.
Respond only with JSON: {"score": <0-100>, "explanation": "<why this score>", "feedback": "<constructive feedback on the application>"}.`,
			ref, directQuote, application),
	}
}

func validatePrompt(ref, takeaway string) Request {
	return Request{
		Operation: OpValidate,
		JSON:      true,
		MaxTokens: 100,
		Prompt: fmt.Sprintf(`Is the following an accurate key takeaway of %s, read in its context?
Takeaway: %q
Respond only with JSON: {"valid": true} or {"valid": false}.`, ref, takeaway),
	}
}

func searchPrompt(description string) Request {
	return Request{
		Operation: OpSearch,
		JSON:      true,
		MaxTokens: 600,
		Prompt: fmt.Sprintf(`Suggest up to five Bible passages that match this description: %q
Respond only with JSON: {"verses": ["Book Chapter:Verse" or "Book Chapter:Start-End", ...]}.
Respond with {"verses": []} if nothing fits.`, description),
	}
}

func pingPrompt() Request {
	return Request{Operation: OpPing, Prompt: "Say OK", MaxTokens: 16}
}
