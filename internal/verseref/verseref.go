// Package verseref parses human-written passage references such as
// "Romans 12:12-14" or "1 John 1:9" into models.VerseRef.
package verseref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/versekeeper/versekeeper/pkg/models"
)

// Book names may start with a digit ("1 John") and contain spaces
// ("Song of Solomon"). Ranges accept '-', en dash and em dash.
var refPattern = regexp.MustCompile(`^\s*((?:[1-3]\s*)?[A-Za-z][A-Za-z .']*?)\s+(\d+)\s*:\s*(\d+)(?:\s*[-–—]\s*(\d+))?\s*$`)

// Parse converts "Book Chapter:Verse[-Verse]" into a normalized VerseRef.
func Parse(text string) (models.VerseRef, error) {
	m := refPattern.FindStringSubmatch(text)
	if m == nil {
		return models.VerseRef{}, fmt.Errorf("invalid verse reference %q", text)
	}

	chapter, _ := strconv.Atoi(m[2])
	start, _ := strconv.Atoi(m[3])
	end := start
	if m[4] != "" {
		end, _ = strconv.Atoi(m[4])
	}
	if chapter <= 0 || start <= 0 {
		return models.VerseRef{}, fmt.Errorf("invalid verse reference %q: chapter and verse must be positive", text)
	}

	ref := models.VerseRef{
		Book:       normalizeBook(m[1]),
		Chapter:    chapter,
		StartVerse: start,
		EndVerse:   end,
	}
	return ref.Normalize(), nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(text string) models.VerseRef {
	ref, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return ref
}

func normalizeBook(book string) string {
	book = strings.Join(strings.Fields(book), " ")
	// "1John" -> "1 John"
	if len(book) > 1 && book[0] >= '1' && book[0] <= '3' && book[1] != ' ' {
		book = book[:1] + " " + book[1:]
	}
	return book
}
