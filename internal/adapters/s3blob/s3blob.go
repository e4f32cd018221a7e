// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package s3blob adapts Amazon S3 to the ports.Blob interface.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of *s3.Client this adapter calls.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Blob wraps an S3 client and bucket, prefixing every key written with
// Prefix (e.g. a per-environment namespace) if set.
type Blob struct {
	Client API
	Bucket string
	Prefix string
}

// New wraps client as a ports.Blob over bucket.
func New(client API, bucket, prefix string) *Blob {
	return &Blob{Client: client, Bucket: bucket, Prefix: prefix}
}

func (b *Blob) fullKey(key string) string {
	if b.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(b.Prefix, "/") + "/" + key
}

// Get takes the full key as returned by Put; it does not re-apply Prefix.
func (b *Blob) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *Blob) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	full := b.fullKey(key)
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return full, nil
}
