// Gemini-backed advisor client. The model is asked for a single JSON object;
// decoding and catalog validation happen in the service layer.

package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/Shrinet82/ai-sre-agent/internal/config"
)

type AdvisorClient struct {
	client *genai.Client
	model  string
}

func NewAdvisorClient(cfg config.AdvisorConfig) (*AdvisorClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}
	return &AdvisorClient{client: client, model: cfg.Model}, nil
}

// Advise sends the assembled incident prompt and returns the raw model text.
// ResponseMIMEType forces plain JSON so the caller can decode strictly.
func (c *AdvisorClient) Advise(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Candidates) == 0 {
		return "", fmt.Errorf("empty advisor response")
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("empty advisor response")
	}
	return text, nil
}
