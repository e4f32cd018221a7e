// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package llmclient adapts an OpenAI-chat-compatible completion endpoint to
// the ports.LLM interface, retrying transient failures with exponential
// backoff and giving up immediately on 4xx responses.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client calls a chat-completions endpoint.
type Client struct {
	HTTP         *http.Client
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	RequestTimeout time.Duration
	MaxElapsedTime time.Duration
}

// New builds a Client. baseURL is the full completions endpoint (e.g.
// "https://api.example.com/v1/chat/completions"). RequestTimeout is left
// zero, so each request is bounded only by the caller's context.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		HTTP:           &http.Client{},
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Model:          model,
		MaxElapsedTime: 90 * time.Second,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Invoke implements ports.LLM. It returns the raw assistant message
// content; callers extract and validate JSON from it.
func (c *Client) Invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Model:       c.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.Temperature,
		MaxTokens:   maxTokens,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llmclient: marshaling request: %w", err)
	}

	var content string
	op := func() error {
		reqCtx := ctx
		if c.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.RequestTimeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("llmclient: building request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return fmt.Errorf("llmclient: request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("llmclient: reading response: %w", err)
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, body))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("llmclient: status %d: %s", resp.StatusCode, body)
		}

		inner, err := extractChoiceContent(body)
		if err != nil {
			return fmt.Errorf("llmclient: %w", err)
		}
		content = inner
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.MaxElapsedTime

	if err := backoff.Retry(op, b); err != nil {
		return "", fmt.Errorf("llmclient: invoke failed: %w", err)
	}
	return content, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// extractChoiceContent reads the OpenAI-style choices[0].message.content
// field out of a chat-completions response body.
func extractChoiceContent(body []byte) (string, error) {
	var obj struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(obj.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return obj.Choices[0].Message.Content, nil
}
