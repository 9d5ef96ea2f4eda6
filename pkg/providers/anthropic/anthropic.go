// Package anthropic provides a provider.Responder for the Anthropic
// Messages wire shape: the system prompt is a separate top-level field,
// max_tokens is required, and authentication uses the x-api-key header
// plus a fixed protocol version header.
package anthropic

import (
	"context"
	"fmt"

	"github.com/germanamz/parley/pkg/chats/transcript"
	"github.com/germanamz/parley/pkg/modeladapter"
	"github.com/germanamz/parley/pkg/providers/provider"
)

const (
	messagesPath       = "/v1/messages"
	apiVersion         = "2023-06-01"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

var _ provider.Responder = (*Adapter)(nil)

// Adapter implements provider.Responder for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter

	agent        string
	systemPrompt string
}

// New creates an Adapter that speaks as agentName.
// The baseURL should be "https://api.anthropic.com" (no trailing slash).
func New(agentName, baseURL, apiKey, model string) *Adapter {
	a := &Adapter{
		agent:        agentName,
		systemPrompt: provider.SystemPrompt(agentName),
	}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-api-key",
	}
	a.Model = model
	a.MaxTokens = defaultMaxTokens
	a.Headers = map[string]string{
		"anthropic-version": apiVersion,
	}

	return a
}

// Name returns the agent name this adapter speaks as.
func (a *Adapter) Name() string { return a.agent }

// Respond sends the conversation to the Messages API and returns the reply
// text. An empty content array is the model declining its turn and is
// returned as the pass token, not an error.
func (a *Adapter) Respond(ctx context.Context, tr *transcript.Transcript) (string, error) {
	req := a.buildRequest(tr)

	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, req, &resp); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	if len(resp.Content) == 0 {
		return provider.PassToken, nil
	}

	return resp.Content[0].Text, nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(tr *transcript.Transcript) apiRequest {
	req := apiRequest{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		System:      a.systemPrompt,
		Temperature: defaultTemperature,
	}

	// The system prompt never joins the message list on this shape.
	for _, m := range provider.Flatten(tr, a.agent) {
		req.Messages = append(req.Messages, apiMessage{Role: m.Role, Content: m.Content})
	}

	return req
}
