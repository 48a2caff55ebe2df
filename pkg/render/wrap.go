package render

import (
	"strings"

	"golang.org/x/image/font"
)

// Measurer reports the rendered width of a string in pixels.
type Measurer func(string) int

func faceMeasurer(face font.Face) Measurer {
	return func(s string) int {
		return font.MeasureString(face, s).Ceil()
	}
}

// WrapWords greedily packs the whitespace-separated words of text into lines
// no wider than maxWidth. A word is appended to the current line only while
// the joined line still fits; otherwise the line is closed and the word opens
// the next one. A word that is wider than maxWidth on its own gets a line to
// itself.
func WrapWords(text string, maxWidth int, measure Measurer) []string {
	words := strings.Fields(text)
	lines := make([]string, 0, 1)
	var current []string

	for _, word := range words {
		candidate := strings.Join(append(current, word), " ")
		if measure(candidate) <= maxWidth {
			current = append(current, word)
			continue
		}
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
		}
		current = []string{word}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}
