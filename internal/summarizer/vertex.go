package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexCompleter calls a Gemini model through Vertex AI.
type VertexCompleter struct {
	client *genai.Client
	model  string
}

func NewVertexCompleter(ctx context.Context, projectID, region, model string) (*VertexCompleter, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("vertex projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{client: client, model: model}, nil
}

func (c *VertexCompleter) Name() string { return "vertex:" + c.model }

func (c *VertexCompleter) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userText))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func (c *VertexCompleter) Close() error {
	return c.client.Close()
}
