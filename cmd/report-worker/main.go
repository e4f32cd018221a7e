// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The report-worker service long-polls the report queue, assembles each
// meeting's ensemble transcript, drives the LLM to produce structured
// minutes, validates the result, and hands off to the export queue.
//
// Required environment variables:
//
//	DYNAMODB_TABLE     Meeting-record table name.
//	GLOSSARY_TABLE     Glossary-term table name.
//	S3_BUCKET          Object store bucket for transcripts and reports.
//	SQS_REPORT_QUEUE   This worker's inbound queue URL.
//	SQS_EXPORT_QUEUE   The export stage's queue URL.
//	SQS_TRANSCRIPTION_QUEUE
//	                   Unused by this worker, but validated by config.Load.
//	ENABLE_TRANSCRIBE, ENABLE_WHISPER or FUNASR_URL
//	                   At least one must be set (validated by config.Load).
//	LLM_BASE_URL       Chat-completions endpoint.
//	LLM_API_KEY        Bearer token for the LLM endpoint.
//
// Optional environment variables (with defaults):
//
//	LLM_MODEL                  gpt-4o-mini
//	LLM_MAX_OUTPUT_TOKENS      16000
//	GLOSSARY_CACHE_TTL_SECONDS 600
//	AWS_REGION                 us-east-1
//	AWS_ASSUME_ROLE_ARN        (unset; no role assumption)
//	S3_PREFIX                  (unset; no key prefix)
//	RECEIVE_WAIT_SECONDS       20
//	EMPTY_POLL_SLEEP_SECONDS   5
//	PORT                       8080
//	BIND                       *
//	DEBUG                      false
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/sesame437/meeting-minutes/internal/adapters/dynamorecord"
	"github.com/sesame437/meeting-minutes/internal/adapters/llmclient"
	"github.com/sesame437/meeting-minutes/internal/adapters/s3blob"
	"github.com/sesame437/meeting-minutes/internal/adapters/sqsqueue"
	"github.com/sesame437/meeting-minutes/internal/config"
	"github.com/sesame437/meeting-minutes/internal/glossary"
	"github.com/sesame437/meeting-minutes/internal/pipeline"
	"github.com/sesame437/meeting-minutes/internal/report"
)

const errKey = "error"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.LLMBaseURL == "" || cfg.LLMAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: LLM_BASE_URL and LLM_API_KEY environment variables are required")
		os.Exit(1)
	}

	debug := flag.Bool("d", false, "enable debug logging")
	port := flag.String("p", envOr("PORT", "8080"), "health checks port")
	bind := flag.String("bind", envOr("BIND", "*"), "interface to bind on")
	flag.Parse()

	logOptions := &slog.HandlerOptions{}
	if cfg.Debug || *debug {
		logOptions.Level = slog.LevelDebug
		logOptions.AddSource = true
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, logOptions))
	slog.SetDefault(logger)

	var ready bool
	var readyMu sync.Mutex
	http.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprintf(w, "OK\n") })
	http.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		readyMu.Lock()
		r := ready
		readyMu.Unlock()
		if !r {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "OK\n")
	})

	var addr string
	if *bind == "*" {
		addr = ":" + *port
	} else {
		addr = *bind + ":" + *port
	}
	httpServer := &http.Server{Addr: addr, Handler: http.DefaultServeMux, ReadHeaderTimeout: 3 * time.Second}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With(errKey, err).Error("http listener error")
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.With(errKey, err).Error("error loading AWS config")
		os.Exit(1)
	}
	if cfg.AssumeRoleARN != "" {
		logger.With("role_arn", cfg.AssumeRoleARN).Info("assuming IAM role")
		stsClient := sts.NewFromConfig(awsCfg)
		awsCfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRoleARN)
	}

	records := dynamorecord.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, "status-created-index")
	glossarySource := dynamorecord.NewGlossaryStore(dynamodb.NewFromConfig(awsCfg), cfg.GlossaryTable)
	blob := s3blob.New(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix)
	queue := sqsqueue.New(sqs.NewFromConfig(awsCfg))
	llm := llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	stageCfg := report.DefaultConfig()
	stageCfg.ExportQueueURL = cfg.SQSExportQueue
	stageCfg.LLMMaxOutputTokens = cfg.LLMMaxOutputTokens

	stage := report.New(cfg.SQSReportQueue, stageCfg)
	stage.Queue = queue
	stage.Blob = blob
	stage.Record = records
	stage.LLM = llm
	stage.Glossary = glossary.New(glossarySource, cfg.GlossaryCacheTTL)
	stage.Logger = logger

	controller := &pipeline.Controller{
		Queue:          queue,
		Stage:          stage,
		Recorder:       stage,
		Logger:         logger,
		ReceiveMax:     1,
		WaitSeconds:    cfg.ReceiveWaitSeconds,
		EmptyPollSleep: time.Duration(cfg.EmptyPollSleepSeconds) * time.Second,
	}

	readyMu.Lock()
	ready = true
	readyMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.With(errKey, err).Error("controller exited unexpectedly")
		}
	}()

	<-done
	logger.Debug("beginning graceful shutdown")
	cancel()
	wg.Wait()

	if err := httpServer.Close(); err != nil {
		logger.With(errKey, err).Error("http listener error on close")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
