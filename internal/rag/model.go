package rag

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// GenkitModel adapts a Genkit instance to the Model interface.
type GenkitModel struct {
	g         *genkit.Genkit
	modelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
}

// NewGenkitModel creates a GenkitModel for the given provider-qualified
// model name.
func NewGenkitModel(g *genkit.Genkit, modelName string) *GenkitModel {
	return &GenkitModel{g: g, modelName: modelName}
}

// Generate produces a completion for prompt under the system instruction.
// Knowledge answers use temperature 0 so the output stays grounded in the
// retrieved context.
func (m *GenkitModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	var temperature float32
	resp, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{Temperature: &temperature}),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return resp.Text(), nil
}
