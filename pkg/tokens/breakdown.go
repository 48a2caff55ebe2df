package tokens

import "github.com/aixgo-dev/pixelctx/pkg/tree"

// Breakdown is the token accounting of a single model call.
type Breakdown struct {
	// VisionTokens is the cost of the context image (0 without context).
	VisionTokens int `json:"vision_tokens"`
	// TextTokens is the cost of the prompt text sent next to the image.
	TextTokens int `json:"text_tokens"`
	// TextEquivalentTokens is the baseline cost of sending the context as text.
	TextEquivalentTokens int `json:"text_equivalent_tokens"`
	// Savings is TextEquivalentTokens minus what was actually sent. It may be
	// negative for short conversations.
	Savings int `json:"token_savings"`
}

// Sent returns the estimated tokens actually sent: image plus prompt text.
func (b Breakdown) Sent() int {
	return b.VisionTokens + b.TextTokens
}

// Estimate prices one call. context holds the messages rendered into the
// image of imageWidth x imageHeight; promptText is the text part sent with it.
//
// With context, savings are the text-equivalent cost of the context minus the
// image and prompt text costs, reported as is even when negative. Without
// context nothing is rendered, the text baseline equals the prompt and the
// savings are zero.
func Estimate(context []tree.Message, promptText string, imageWidth, imageHeight int) Breakdown {
	b := Breakdown{TextTokens: TextTokens(promptText)}
	if len(context) == 0 {
		b.TextEquivalentTokens = b.TextTokens
		return b
	}

	b.VisionTokens = ImageTokens(imageWidth, imageHeight)
	b.TextEquivalentTokens = TextEquivalentTokens(context)
	b.Savings = b.TextEquivalentTokens - b.Sent()
	return b
}
