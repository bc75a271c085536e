package providers

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/versekeeper/versekeeper/internal/verseref"
	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

// CleanJSONBlock strips markdown code fences that models wrap around JSON
// even when told not to.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// extractJSON returns the first JSON object or array in text that decodes
// cleanly. Prose around it, brackets included, is skipped.
func extractJSON(text string) (string, bool) {
	return firstJSON(CleanJSONBlock(text), "{[")
}

// extractObject is extractJSON restricted to objects.
func extractObject(text string) (string, bool) {
	return firstJSON(CleanJSONBlock(text), "{")
}

func firstJSON(text, openers string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if strings.IndexByte(openers, text[i]) < 0 {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return string(raw), true
		}
	}
	return "", false
}

// ── Verses ──────────────────────────────────────────────────

type rawVerse struct {
	Number json.RawMessage `json:"number"`
	Verse  json.RawMessage `json:"verse"`
	Text   string          `json:"text"`
}

func (v rawVerse) number() int {
	for _, raw := range []json.RawMessage{v.Number, v.Verse} {
		if len(raw) == 0 {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return n
			}
		}
	}
	return 0
}

// ParseVerses decodes a model response into verses. Entries with blank text
// or no verse number are dropped; the rest are ordered by verse number.
// Zero surviving entries is a parse error.
func ParseVerses(text string) result.Result[[]models.ScriptureVerse] {
	body, ok := extractJSON(text)
	if !ok {
		return result.Errorf[[]models.ScriptureVerse](result.KindParse, "scripture response contains no JSON")
	}

	var items []json.RawMessage
	if strings.HasPrefix(body, "{") {
		var wrapper struct {
			Verses []json.RawMessage `json:"verses"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return result.Fail[[]models.ScriptureVerse](result.KindParse, "decode scripture response", err)
		}
		items = wrapper.Verses
	} else if err := json.Unmarshal([]byte(body), &items); err != nil {
		return result.Fail[[]models.ScriptureVerse](result.KindParse, "decode scripture response", err)
	}

	verses := make([]models.ScriptureVerse, 0, len(items))
	for _, item := range items {
		var rv rawVerse
		if err := json.Unmarshal(item, &rv); err != nil {
			continue
		}
		v := models.ScriptureVerse{Number: rv.number(), Text: strings.TrimSpace(rv.Text)}
		if v.Number <= 0 || v.Text == "" {
			continue
		}
		verses = append(verses, v)
	}
	return finishVerses(verses)
}

// finishVerses sorts, and fails when nothing usable is left.
func finishVerses(verses []models.ScriptureVerse) result.Result[[]models.ScriptureVerse] {
	if len(verses) == 0 {
		return result.Errorf[[]models.ScriptureVerse](result.KindParse, "no valid verses in response")
	}
	sort.SliceStable(verses, func(i, j int) bool { return verses[i].Number < verses[j].Number })
	return result.Success(verses)
}

// ── Key takeaway ────────────────────────────────────────────

// ParseTakeaway accepts plain text or {"takeaway": "..."}.
func ParseTakeaway(text string) result.Result[string] {
	if body, ok := extractObject(text); ok {
		var obj struct {
			Takeaway string `json:"takeaway"`
		}
		if err := json.Unmarshal([]byte(body), &obj); err == nil && strings.TrimSpace(obj.Takeaway) != "" {
			return result.Success(strings.TrimSpace(obj.Takeaway))
		}
	}
	text = strings.Trim(strings.TrimSpace(CleanJSONBlock(text)), `"`)
	if text == "" {
		return result.Errorf[string](result.KindParse, "empty takeaway")
	}
	return result.Success(text)
}

// ── Score ───────────────────────────────────────────────────

// ParseScore requires all three fields. A partial answer is a parse error.
func ParseScore(text string) result.Result[models.ScoreResult] {
	body, ok := extractObject(text)
	if !ok {
		return result.Errorf[models.ScoreResult](result.KindParse, "score response contains no JSON object")
	}

	var obj struct {
		Score       *float64 `json:"score"`
		Explanation string   `json:"explanation"`
		Feedback    string   `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return result.Fail[models.ScoreResult](result.KindParse, "decode score response", err)
	}
	switch {
	case obj.Score == nil:
		return result.Errorf[models.ScoreResult](result.KindParse, "score response missing score")
	case *obj.Score < 0 || *obj.Score > 100:
		return result.Errorf[models.ScoreResult](result.KindParse, "score %v outside 0-100", *obj.Score)
	case strings.TrimSpace(obj.Explanation) == "":
		return result.Errorf[models.ScoreResult](result.KindParse, "score response missing explanation")
	case strings.TrimSpace(obj.Feedback) == "":
		return result.Errorf[models.ScoreResult](result.KindParse, "score response missing feedback")
	}

	return result.Success(models.ScoreResult{
		ContextScore: int(*obj.Score + 0.5),
		Explanation:  strings.TrimSpace(obj.Explanation),
		Feedback:     strings.TrimSpace(obj.Feedback),
	})
}

// ── Validation ──────────────────────────────────────────────

// ParseValidation accepts {"valid": bool} / {"is_valid": bool} or a bare
// true/false/yes/no answer.
func ParseValidation(text string) result.Result[bool] {
	if body, ok := extractObject(text); ok {
		var obj struct {
			Valid   *bool `json:"valid"`
			IsValid *bool `json:"is_valid"`
		}
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			if obj.Valid != nil {
				return result.Success(*obj.Valid)
			}
			if obj.IsValid != nil {
				return result.Success(*obj.IsValid)
			}
		}
	}

	word := strings.ToLower(strings.Trim(strings.TrimSpace(CleanJSONBlock(text)), `."'!`))
	if fields := strings.Fields(word); len(fields) > 0 {
		word = strings.Trim(fields[0], `.,:;"'!`)
	}
	switch word {
	case "true", "yes", "valid", "correct":
		return result.Success(true)
	case "false", "no", "invalid", "incorrect":
		return result.Success(false)
	}
	return result.Errorf[bool](result.KindParse, "cannot interpret validation answer %q", truncate(text, 80))
}

// ── Verse search ────────────────────────────────────────────

type rawRef struct {
	Reference  string `json:"reference"`
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	StartVerse int    `json:"start_verse"`
	EndVerse   int    `json:"end_verse"`
}

// ParseVerseRefs decodes suggested passages. An empty list is a valid
// answer; a non-empty list with no usable entry is a parse error.
func ParseVerseRefs(text string) result.Result[[]models.VerseRef] {
	body, ok := extractJSON(text)
	if !ok {
		return result.Errorf[[]models.VerseRef](result.KindParse, "verse search response contains no JSON")
	}

	var items []json.RawMessage
	if strings.HasPrefix(body, "{") {
		var wrapper struct {
			Verses     []json.RawMessage `json:"verses"`
			References []json.RawMessage `json:"references"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return result.Fail[[]models.VerseRef](result.KindParse, "decode verse search response", err)
		}
		items = append(wrapper.Verses, wrapper.References...)
	} else if err := json.Unmarshal([]byte(body), &items); err != nil {
		return result.Fail[[]models.VerseRef](result.KindParse, "decode verse search response", err)
	}

	refs := make([]models.VerseRef, 0, len(items))
	for _, item := range items {
		if ref, ok := decodeRef(item); ok {
			refs = append(refs, ref)
		}
	}
	if len(items) > 0 && len(refs) == 0 {
		return result.Errorf[[]models.VerseRef](result.KindParse, "no valid references among %d suggestions", len(items))
	}
	return result.Success(refs)
}

func decodeRef(item json.RawMessage) (models.VerseRef, bool) {
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		ref, err := verseref.Parse(s)
		return ref, err == nil
	}

	var rr rawRef
	if err := json.Unmarshal(item, &rr); err != nil {
		return models.VerseRef{}, false
	}
	if rr.Reference != "" {
		ref, err := verseref.Parse(rr.Reference)
		return ref, err == nil
	}
	ref := models.VerseRef{Book: rr.Book, Chapter: rr.Chapter, StartVerse: rr.StartVerse, EndVerse: rr.EndVerse}.Normalize()
	return ref, ref.IsValid()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s…", s[:n])
}
