// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package httpasr adapts a self-hosted Whisper or FunASR HTTP service to
// the ports.HTTPASR interface: a health probe and a transcription POST,
// both routed through a rehttp retry transport.
package httpasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"

	"github.com/sesame437/meeting-minutes/internal/ports"
)

// Client adapts one Whisper/FunASR HTTP service to ports.HTTPASR.
type Client struct {
	HTTP    *http.Client
	BaseURL string
}

// New builds a Client against baseURL. The returned client retries
// temporary network errors and 429/502/503/504 responses up to 3 times with
// jittered backoff. It sets no client-wide timeout: each call is bounded by
// the context its caller passes in.
func New(baseURL string) *Client {
	transport := rehttp.NewTransport(
		http.DefaultTransport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(3),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
			),
		),
		rehttp.ExpJitterDelay(200*time.Millisecond, 5*time.Second),
	)
	return &Client{
		HTTP:    &http.Client{Transport: transport},
		BaseURL: baseURL,
	}
}

// Healthy implements ports.HTTPASR.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type transcribeRequest struct {
	Bucket   string `json:"s3_bucket"`
	Key      string `json:"s3_key"`
	Language string `json:"language,omitempty"`
}

// Transcribe implements ports.HTTPASR. bucket and key name the source audio
// object in S3; the service is expected to fetch it itself.
func (c *Client) Transcribe(ctx context.Context, bucket, key, language string) (ports.ASRResponse, error) {
	payload, err := json.Marshal(transcribeRequest{Bucket: bucket, Key: key, Language: language})
	if err != nil {
		return ports.ASRResponse{}, fmt.Errorf("httpasr: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/asr", bytes.NewReader(payload))
	if err != nil {
		return ports.ASRResponse{}, fmt.Errorf("httpasr: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ports.ASRResponse{}, fmt.Errorf("httpasr: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.ASRResponse{}, fmt.Errorf("httpasr: unexpected status %d", resp.StatusCode)
	}

	var out ports.ASRResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.ASRResponse{}, fmt.Errorf("httpasr: decoding response: %w", err)
	}
	return out, nil
}
