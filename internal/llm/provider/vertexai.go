package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"
)

const vertexAIClientTimeout = 30 * time.Second

func init() {
	RegisterFactory("vertexai", func(s Settings) (Provider, error) {
		projectID := s.Project
		if projectID == "" {
			projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if projectID == "" {
			return nil, fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT not set", ErrMissingCredential)
		}

		location := s.Location
		if location == "" {
			location = os.Getenv("VERTEX_AI_LOCATION")
		}
		if location == "" {
			location = "us-central1"
		}

		return NewVertexAIProvider(projectID, location, s.Model)
	})
}

// NewVertexAIProvider creates a Gemini provider backed by Vertex AI.
// It uses Application Default Credentials (ADC) for authentication.
func NewVertexAIProvider(projectID, location, model string) (*GeminiProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), vertexAIClientTimeout)
	defer cancel()

	p, err := NewGeminiProvider(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	return p, nil
}
