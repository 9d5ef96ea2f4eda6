// Package openai provides a provider.Responder for the OpenAI Chat
// Completions wire shape: a flat role/content message list with the
// system prompt as the first entry, authenticated with a bearer token.
package openai

import (
	"context"
	"fmt"

	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/modeladapter"
	"github.com/germanamz/parley/pkg/providers/provider"
)

const (
	completionsPath    = "/v1/chat/completions"
	defaultTemperature = 0.7
)

var _ provider.Responder = (*Adapter)(nil)

// Adapter implements provider.Responder for the OpenAI Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter

	agent        string
	systemPrompt string
}

// New creates an Adapter that speaks as agentName.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(agentName, baseURL, apiKey, model string) *Adapter {
	a := &Adapter{
		agent:        agentName,
		systemPrompt: provider.SystemPrompt(agentName),
	}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Model = model

	return a
}

// Name returns the agent name this adapter speaks as.
func (a *Adapter) Name() string { return a.agent }

// Respond sends the conversation to the Chat Completions API and returns
// the reply text.
func (a *Adapter) Respond(ctx context.Context, tr *transcript.Transcript) (string, error) {
	req := a.buildRequest(tr)

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(tr *transcript.Transcript) apiRequest {
	req := apiRequest{
		Model:       a.Model,
		Temperature: defaultTemperature,
		Messages:    []apiMessage{{Role: "system", Content: a.systemPrompt}},
	}

	for _, m := range provider.Flatten(tr, a.agent) {
		req.Messages = append(req.Messages, apiMessage{Role: m.Role, Content: m.Content})
	}

	return req
}
