// Package tokens estimates token costs with fixed heuristics.
//
// Nothing here is a tokenizer. Image costs follow the published tile formula
// for Gemini 2.x vision input; text costs use the usual ~4 characters per
// token approximation.
package tokens

import (
	"unicode/utf8"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
)

const (
	// SmallImageMax is the largest width and height billed as a single tile.
	SmallImageMax = 384
	// TileSize is the edge length of a vision tile in pixels.
	TileSize = 768
	// TokensPerTile is the cost of one vision tile.
	TokensPerTile = 258
	// CharsPerToken is the text heuristic divisor.
	CharsPerToken = 4
	// RoleOverheadChars approximates the role marker and separator a message
	// costs when a conversation is sent as plain text.
	RoleOverheadChars = 15
)

// ImageTokens returns the vision token cost of a width x height image.
// Images up to 384x384 cost one tile; larger images are cut into 768x768
// tiles, rounding up on each axis.
func ImageTokens(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	if width <= SmallImageMax && height <= SmallImageMax {
		return TokensPerTile
	}
	return Tiles(width, height) * TokensPerTile
}

// Tiles returns the number of 768x768 tiles covering the image.
func Tiles(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return ceilDiv(width, TileSize) * ceilDiv(height, TileSize)
}

// TextTokens returns the character count of text divided by four.
func TextTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// TextEquivalentTokens estimates what messages would cost sent as text: all
// content characters plus a fixed per-message role overhead, divided by four.
func TextEquivalentTokens(messages []tree.Message) int {
	chars := 0
	for _, m := range messages {
		chars += utf8.RuneCountInString(m.Content)
	}
	return (chars + len(messages)*RoleOverheadChars) / CharsPerToken
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
