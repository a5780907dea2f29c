package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini is the production Extractor.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds an extractor using the given API key and model name.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Extract sends the document to the model and decodes the response.
func (g *Gemini) Extract(ctx context.Context, doc Document) (*Extraction, error) {
	prompt := buildPrompt(doc)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIMEType,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("oracle: empty response from model")
	}

	var parsed map[string]interface{}
	clean := cleanModelJSON(rawText)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, &SchemaError{Field: "(root)", Detail: fmt.Sprintf("not valid JSON: %v", err)}
	}
	return decodeExtraction(parsed)
}

// cleanModelJSON strips markdown fences and surrounding junk the model
// sometimes emits despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost JSON object if junk remains around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
