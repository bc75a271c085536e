package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versekeeper/versekeeper/pkg/models"
	"github.com/versekeeper/versekeeper/pkg/result"
)

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("  {\"a\":1}  "))
}

func TestParseVerses_DropsBlankText(t *testing.T) {
	r := ParseVerses(`{"verses": [{"number": 12, "text": "   "}, {"number": 13, "text": "Share with the Lord's people who are in need."}]}`)

	verses, ok := r.Value()
	require.True(t, ok, r.Message())
	require.Len(t, verses, 1)
	assert.Equal(t, models.ScriptureVerse{Number: 13, Text: "Share with the Lord's people who are in need."}, verses[0])
}

func TestParseVerses_SortsAndAcceptsVariants(t *testing.T) {
	text := "Here you go:\n```json\n[{\"verse\": \"14\", \"text\": \"Bless those who persecute you.\"}, {\"number\": 12, \"text\": \"Be joyful in hope.\"}, {\"text\": \"no number\"}]\n```"
	verses, ok := ParseVerses(text).Value()
	require.True(t, ok)
	require.Len(t, verses, 2)
	assert.Equal(t, 12, verses[0].Number)
	assert.Equal(t, 14, verses[1].Number)
}

func TestParseVerses_NoValidVersesIsError(t *testing.T) {
	for _, text := range []string{
		`{"verses": [{"number": 1, "text": ""}]}`,
		`{"verses": []}`,
		`I cannot help with that.`,
		`{"verses": "oops"}`,
	} {
		r := ParseVerses(text)
		assert.False(t, r.IsSuccess(), "ParseVerses(%q) should fail", text)
		assert.Equal(t, result.KindParse, r.Kind())
	}
}

func TestParse_JSONAfterBracketedProse(t *testing.T) {
	verses, ok := ParseVerses("Here is the passage [ESV]:\n{\"verses\":[{\"number\":16,\"text\":\"For God so loved the world\"}]}").Value()
	require.True(t, ok)
	assert.Equal(t, []models.ScriptureVerse{{Number: 16, Text: "For God so loved the world"}}, verses)

	score, ok := ParseScore(`Score (0-100) [final]: {"score": 85, "explanation": "Faithful.", "feedback": "Be specific."} Hope this helps [1].`).Value()
	require.True(t, ok)
	assert.Equal(t, 85, score.ContextScore)

	valid, ok := ParseValidation(`Checked against [John 3:16]: {"valid": false}`).Value()
	require.True(t, ok)
	assert.False(t, valid)

	takeaway, ok := ParseTakeaway(`Summary [short]: {"takeaway": "God gave His Son."}`).Value()
	require.True(t, ok)
	assert.Equal(t, "God gave His Son.", takeaway)

	refs, ok := ParseVerseRefs(`Suggestions (see [notes]): ["Philippians 4:6-7"]`).Value()
	require.True(t, ok)
	assert.Equal(t, []models.VerseRef{{Book: "Philippians", Chapter: 4, StartVerse: 6, EndVerse: 7}}, refs)
}

func TestParseScore_SkipsArraysBeforeObject(t *testing.T) {
	score, ok := ParseScore(`Rubric [1, 2, 3] applied: {"score": 60, "explanation": "e", "feedback": "f"}`).Value()
	require.True(t, ok)
	assert.Equal(t, 60, score.ContextScore)
}

func TestParseTakeaway(t *testing.T) {
	v, ok := ParseTakeaway(`  "God so loved the world that He gave His Son."  `).Value()
	require.True(t, ok)
	assert.Equal(t, "God so loved the world that He gave His Son.", v)

	v, ok = ParseTakeaway(`{"takeaway": "Rejoice in hope."}`).Value()
	require.True(t, ok)
	assert.Equal(t, "Rejoice in hope.", v)

	assert.False(t, ParseTakeaway("   ").IsSuccess())
}

func TestParseScore(t *testing.T) {
	v, ok := ParseScore("```json\n{\"score\": 85, \"explanation\": \"Faithful.\", \"feedback\": \"Be specific.\"}\n```").Value()
	require.True(t, ok)
	assert.Equal(t, models.ScoreResult{ContextScore: 85, Explanation: "Faithful.", Feedback: "Be specific."}, v)
}

func TestParseScore_PartialIsError(t *testing.T) {
	for _, text := range []string{
		`{"explanation": "x", "feedback": "y"}`,
		`{"score": 70, "feedback": "y"}`,
		`{"score": 70, "explanation": "x"}`,
		`{"score": 170, "explanation": "x", "feedback": "y"}`,
		`{"score": "high", "explanation": "x", "feedback": "y"}`,
		`score: 70`,
	} {
		assert.False(t, ParseScore(text).IsSuccess(), "ParseScore(%q) should fail", text)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{`{"valid": false}`, false},
		{`{"is_valid": true}`, true},
		{"true", true},
		{"No, this passage is about God's love.", false},
		{"Yes.", true},
	}
	for _, tt := range tests {
		v, ok := ParseValidation(tt.text).Value()
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, v, tt.text)
	}
	assert.False(t, ParseValidation("maybe").IsSuccess())
}

func TestParseVerseRefs(t *testing.T) {
	refs, ok := ParseVerseRefs(`{"verses": ["Philippians 4:6-7", "not a ref", {"book": "Matthew", "chapter": 6, "start_verse": 34}]}`).Value()
	require.True(t, ok)
	require.Len(t, refs, 2)
	assert.Equal(t, models.VerseRef{Book: "Philippians", Chapter: 4, StartVerse: 6, EndVerse: 7}, refs[0])
	assert.Equal(t, models.VerseRef{Book: "Matthew", Chapter: 6, StartVerse: 34, EndVerse: 34}, refs[1])
}

func TestParseVerseRefs_EmptyIsSuccess(t *testing.T) {
	refs, ok := ParseVerseRefs(`{"verses": []}`).Value()
	require.True(t, ok)
	assert.Empty(t, refs)

	refs, ok = ParseVerseRefs(`[]`).Value()
	require.True(t, ok)
	assert.Empty(t, refs)
}

func TestParseVerseRefs_AllInvalidIsError(t *testing.T) {
	assert.False(t, ParseVerseRefs(`["nothing", "here"]`).IsSuccess())
	assert.False(t, ParseVerseRefs(`no json at all`).IsSuccess())
}

func TestParseMarkedVerses(t *testing.T) {
	verses, ok := ParseMarkedVerses("Romans 12:12-14\n\n  [12] Rejoice in hope, be patient in tribulation, be constant in prayer. [13] Contribute to the needs of the saints and seek to show hospitality.\n [14] Bless those who persecute you; bless and do not curse them. (ESV)").Value()
	require.True(t, ok)
	require.Len(t, verses, 3)
	assert.Equal(t, []int{12, 13, 14}, []int{verses[0].Number, verses[1].Number, verses[2].Number})
	assert.Equal(t, "Contribute to the needs of the saints and seek to show hospitality.", verses[1].Text)

	assert.False(t, ParseMarkedVerses("no markers").IsSuccess())
}
