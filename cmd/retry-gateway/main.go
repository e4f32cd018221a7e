// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The retry-gateway service exposes the minutes pipeline's retry contract over
// HTTP: an operator (or another internal caller) asks to re-drive a failed
// meeting record, and this service conditionally flips its status back to
// processing and re-enqueues a transcription job.
//
// Required environment variables:
//
//	DYNAMODB_TABLE           Meeting-record table name.
//	GLOSSARY_TABLE           Glossary-term table name (validated for
//	                        consistency with the other workers; unused here).
//	S3_BUCKET                Validated for consistency; unused here.
//	SQS_TRANSCRIPTION_QUEUE  Queue a retried job is re-enqueued onto.
//	SQS_REPORT_QUEUE, SQS_EXPORT_QUEUE
//	                         Validated for consistency; unused here.
//	ENABLE_TRANSCRIBE, ENABLE_WHISPER or FUNASR_URL
//	                         At least one must be set (validated by
//	                         config.Load); unused here.
//
// Optional environment variables (with defaults):
//
//	AWS_REGION              us-east-1
//	AWS_ASSUME_ROLE_ARN     (unset; no role assumption)
//	PORT                    8080
//	BIND                    *
//	DEBUG                   false
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sesame437/meeting-minutes/internal/adapters/dynamorecord"
	"github.com/sesame437/meeting-minutes/internal/adapters/sqsqueue"
	"github.com/sesame437/meeting-minutes/internal/config"
	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/retry"
)

const errKey = "error"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	debug := flag.Bool("d", false, "enable debug logging")
	port := flag.String("p", envOr("PORT", "8080"), "listen port")
	bind := flag.String("bind", envOr("BIND", "*"), "interface to bind on")
	flag.Parse()

	logOptions := &slog.HandlerOptions{}
	if cfg.Debug || *debug {
		logOptions.Level = slog.LevelDebug
		logOptions.AddSource = true
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, logOptions))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	queue := sqsqueue.New(sqs.NewFromConfig(awsCfg))

	retrier := &retry.Retrier{
		Record:                records,
		Queue:                 queue,
		Logger:                logger,
		TranscriptionQueueURL: cfg.SQSTranscriptionQueue,
	}

	router := mux.NewRouter()
	router.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprintf(w, "OK\n") }).Methods("GET")
	router.HandleFunc("/meetings/{meetingId}/{createdAt}/retry", handleRetry(retrier, logger)).Methods("POST")

	var addr string
	if *bind == "*" {
		addr = ":" + *port
	} else {
		addr = *bind + ":" + *port
	}
	httpServer := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 3 * time.Second}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With(errKey, err).Error("http listener error")
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Debug("beginning graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.With(errKey, err).Error("http listener error on shutdown")
	}
}

func handleRetry(retrier *retry.Retrier, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)
		log := logger.With("requestId", requestID)

		vars := mux.Vars(r)
		meetingID := vars["meetingId"]

		createdAt, err := time.Parse(time.RFC3339Nano, vars["createdAt"])
		if err != nil {
			http.Error(w, "invalid createdAt: must be RFC3339Nano", http.StatusBadRequest)
			return
		}

		key := model.RecordKey{MeetingID: meetingID, CreatedAt: createdAt}
		err = retrier.Retry(r.Context(), key)
		if err == nil {
			log.With("meetingId", meetingID).Info("retry accepted")
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, "retry accepted\n")
			return
		}

		var raceErr *retry.RaceError
		if errors.As(err, &raceErr) {
			http.Error(w, raceErr.Error(), http.StatusConflict)
			return
		}

		log.With(errKey, err, "meetingId", meetingID).Error("retry failed")
		http.Error(w, "retry failed", http.StatusInternalServerError)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
