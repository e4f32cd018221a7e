// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package config loads the pipeline's environment-driven configuration,
// following the same load-then-default-then-validate shape used across
// this codebase's per-service Config types.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment variable the pipeline recognizes, plus the
// ambient knobs the worker binaries need at startup.
type Config struct {
	S3Bucket string
	S3Prefix string

	DynamoDBTable string
	GlossaryTable string

	SQSTranscriptionQueue string
	SQSReportQueue        string
	SQSExportQueue        string

	EnableTranscribe bool
	EnableWhisper    bool
	WhisperURL       string
	FunASRURL        string

	SESFromEmail       string
	SESDefaultToEmail  string
	SESDefaultBCCEmail string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	AWSRegion     string
	AssumeRoleARN string

	ReceiveWaitSeconds    int
	EmptyPollSleepSeconds int
	GlossaryCacheTTL      time.Duration
	LLMMaxOutputTokens    int

	Debug     bool
	HTTPDebug bool
}

// FunASREnabled reports whether the FunASR track is enabled: a non-empty
// URL is the sole enablement signal.
func (c *Config) FunASREnabled() bool { return c.FunASRURL != "" }

// AnyTrackEnabled reports whether at least one ASR track is configured. All
// three disabled is a configuration error caught at startup.
func (c *Config) AnyTrackEnabled() bool {
	return c.EnableTranscribe || c.EnableWhisper || c.FunASREnabled()
}

// Load reads configuration from the environment, optionally first loading an
// .env file named by ENV_FILE (ignored if unset or missing; development
// convenience only, never required in production).
func Load() (*Config, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{
		S3Bucket: os.Getenv("S3_BUCKET"),
		S3Prefix: os.Getenv("S3_PREFIX"),

		DynamoDBTable: os.Getenv("DYNAMODB_TABLE"),
		GlossaryTable: os.Getenv("GLOSSARY_TABLE"),

		SQSTranscriptionQueue: os.Getenv("SQS_TRANSCRIPTION_QUEUE"),
		SQSReportQueue:        os.Getenv("SQS_REPORT_QUEUE"),
		SQSExportQueue:        os.Getenv("SQS_EXPORT_QUEUE"),

		EnableTranscribe: parseBooleanEnv("ENABLE_TRANSCRIBE"),
		EnableWhisper:    parseBooleanEnv("ENABLE_WHISPER"),
		WhisperURL:       os.Getenv("WHISPER_URL"),
		FunASRURL:        os.Getenv("FUNASR_URL"),

		SESFromEmail:       os.Getenv("SES_FROM_EMAIL"),
		SESDefaultToEmail:  os.Getenv("SES_TO_EMAIL"),
		SESDefaultBCCEmail: os.Getenv("SES_DEFAULT_BCC_EMAIL"),

		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   os.Getenv("LLM_MODEL"),

		AWSRegion:     os.Getenv("AWS_REGION"),
		AssumeRoleARN: os.Getenv("AWS_ASSUME_ROLE_ARN"),

		ReceiveWaitSeconds:    parseIntEnv("RECEIVE_WAIT_SECONDS", 20),
		EmptyPollSleepSeconds: parseIntEnv("EMPTY_POLL_SLEEP_SECONDS", 5),
		GlossaryCacheTTL:      time.Duration(parseIntEnv("GLOSSARY_CACHE_TTL_SECONDS", 600)) * time.Second,
		LLMMaxOutputTokens:    parseIntEnv("LLM_MAX_OUTPUT_TOKENS", 16000),

		Debug:     os.Getenv("DEBUG") != "",
		HTTPDebug: os.Getenv("HTTP_DEBUG") != "",
	}

	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-east-1"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}

	if cfg.DynamoDBTable == "" {
		return nil, fmt.Errorf("config: DYNAMODB_TABLE environment variable is required")
	}
	if cfg.GlossaryTable == "" {
		return nil, fmt.Errorf("config: GLOSSARY_TABLE environment variable is required")
	}
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("config: S3_BUCKET environment variable is required")
	}
	if cfg.SQSTranscriptionQueue == "" {
		return nil, fmt.Errorf("config: SQS_TRANSCRIPTION_QUEUE environment variable is required")
	}
	if cfg.SQSReportQueue == "" {
		return nil, fmt.Errorf("config: SQS_REPORT_QUEUE environment variable is required")
	}
	if cfg.SQSExportQueue == "" {
		return nil, fmt.Errorf("config: SQS_EXPORT_QUEUE environment variable is required")
	}

	if !cfg.AnyTrackEnabled() {
		return nil, fmt.Errorf("config: at least one of ENABLE_TRANSCRIBE, ENABLE_WHISPER, FUNASR_URL must be set")
	}

	return cfg, nil
}

// parseBooleanEnv parses a boolean environment variable with common truthy values.
func parseBooleanEnv(envVar string) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(envVar)))
	truthyValues := []string{"true", "yes", "t", "y", "1"}
	return slices.Contains(truthyValues, value)
}

// parseIntEnv parses an integer environment variable with a default value.
func parseIntEnv(envVar string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(envVar))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}
