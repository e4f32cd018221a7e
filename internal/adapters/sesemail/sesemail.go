// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package sesemail adapts Amazon SESv2 to the ports.Email interface.
package sesemail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/sesame437/meeting-minutes/internal/ports"
)

// API is the subset of *sesv2.Client this adapter calls.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Client wraps an SESv2 client.
type Client struct {
	API API
}

// New wraps client as a ports.Email.
func New(client API) *Client { return &Client{API: client} }

// SendHTML implements ports.Email.
func (c *Client) SendHTML(ctx context.Context, msg ports.EmailMessage) error {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			BccAddresses: msg.BCC,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody)},
				},
			},
		},
	}
	if _, err := c.API.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("sesemail: send: %w", err)
	}
	return nil
}
