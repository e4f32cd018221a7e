// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package dynamorecord adapts Amazon DynamoDB to the ports.Record and
// ports.Glossary interfaces. The meeting-record table's primary key is
// (meetingId, createdAt); its secondary index (named by StatusIndex) is
// keyed on (status, createdAt).
package dynamorecord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// API is the subset of *dynamodb.Client this adapter calls.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store wraps a meeting-record table.
type Store struct {
	Client      API
	Table       string
	StatusIndex string
}

// New wraps client as a ports.Record over table, using statusIndex as the
// (status, createdAt) secondary index name.
func New(client API, table, statusIndex string) *Store {
	return &Store{Client: client, Table: table, StatusIndex: statusIndex}
}

// recordAV mirrors model.MeetingRecord with every time.Time field
// represented as an RFC3339Nano string: the attributevalue package has no
// built-in time.Time codec, so timestamps are marshaled through this shadow
// type rather than registering a custom (un)marshaler.
type recordAV struct {
	MeetingID       string             `dynamodbav:"meetingId"`
	CreatedAt       string             `dynamodbav:"createdAt"`
	Status          model.Status       `dynamodbav:"status,omitempty"`
	Stage           model.Stage        `dynamodbav:"stage,omitempty"`
	Title           string             `dynamodbav:"title,omitempty"`
	Filename        string             `dynamodbav:"filename,omitempty"`
	MeetingType     model.MeetingType  `dynamodbav:"meetingType,omitempty"`
	S3Key           string             `dynamodbav:"s3Key,omitempty"`
	TranscribeKey   string             `dynamodbav:"transcribeKey,omitempty"`
	WhisperKey      string             `dynamodbav:"whisperKey,omitempty"`
	FunasrKey       string             `dynamodbav:"funasrKey,omitempty"`
	ReportKey       string             `dynamodbav:"reportKey,omitempty"`
	PdfKey          string             `dynamodbav:"pdfKey,omitempty"`
	DurationSeconds float64            `dynamodbav:"durationSeconds,omitempty"`
	RecipientEmails []string           `dynamodbav:"recipientEmails,omitempty"`
	ErrorMessage    string             `dynamodbav:"errorMessage,omitempty"`
	UpdatedAt       string             `dynamodbav:"updatedAt,omitempty"`
	ExportedAt      string             `dynamodbav:"exportedAt,omitempty"`
}

const rfc3339Nano = time.RFC3339Nano

func toAV(rec *model.MeetingRecord) recordAV {
	av := recordAV{
		MeetingID:       rec.MeetingID,
		CreatedAt:       rec.CreatedAt.Format(rfc3339Nano),
		Status:          rec.Status,
		Stage:           rec.Stage,
		Title:           rec.Title,
		Filename:        rec.Filename,
		MeetingType:     rec.MeetingType,
		S3Key:           rec.S3Key,
		TranscribeKey:   rec.TranscribeKey,
		WhisperKey:      rec.WhisperKey,
		FunasrKey:       rec.FunasrKey,
		ReportKey:       rec.ReportKey,
		PdfKey:          rec.PdfKey,
		DurationSeconds: rec.DurationSeconds,
		RecipientEmails: rec.RecipientEmails,
		ErrorMessage:    rec.ErrorMessage,
	}
	if !rec.UpdatedAt.IsZero() {
		av.UpdatedAt = rec.UpdatedAt.Format(rfc3339Nano)
	}
	if rec.ExportedAt != nil {
		av.ExportedAt = rec.ExportedAt.Format(rfc3339Nano)
	}
	return av
}

func fromAV(av recordAV) (*model.MeetingRecord, error) {
	createdAt, err := time.Parse(rfc3339Nano, av.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing createdAt %q: %w", av.CreatedAt, err)
	}
	rec := &model.MeetingRecord{
		MeetingID:       av.MeetingID,
		CreatedAt:       createdAt,
		Status:          av.Status,
		Stage:           av.Stage,
		Title:           av.Title,
		Filename:        av.Filename,
		MeetingType:     av.MeetingType,
		S3Key:           av.S3Key,
		TranscribeKey:   av.TranscribeKey,
		WhisperKey:      av.WhisperKey,
		FunasrKey:       av.FunasrKey,
		ReportKey:       av.ReportKey,
		PdfKey:          av.PdfKey,
		DurationSeconds: av.DurationSeconds,
		RecipientEmails: av.RecipientEmails,
		ErrorMessage:    av.ErrorMessage,
	}
	if av.UpdatedAt != "" {
		updatedAt, err := time.Parse(rfc3339Nano, av.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updatedAt %q: %w", av.UpdatedAt, err)
		}
		rec.UpdatedAt = updatedAt
	}
	if av.ExportedAt != "" {
		exportedAt, err := time.Parse(rfc3339Nano, av.ExportedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing exportedAt %q: %w", av.ExportedAt, err)
		}
		rec.ExportedAt = &exportedAt
	}
	return rec, nil
}

func keyAttributes(key model.RecordKey) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(map[string]string{
		"meetingId": key.MeetingID,
		"createdAt": key.CreatedAt.Format(rfc3339Nano),
	})
}

func (s *Store) Get(ctx context.Context, key model.RecordKey) (*model.MeetingRecord, error) {
	keyAV, err := keyAttributes(key)
	if err != nil {
		return nil, fmt.Errorf("dynamorecord: marshaling key: %w", err)
	}

	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(s.Table), Key: keyAV})
	if err != nil {
		return nil, fmt.Errorf("dynamorecord: get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var av recordAV
	if err := attributevalue.UnmarshalMap(out.Item, &av); err != nil {
		return nil, fmt.Errorf("dynamorecord: unmarshaling item: %w", err)
	}
	return fromAV(av)
}

func (s *Store) Put(ctx context.Context, item *model.MeetingRecord) error {
	av, err := attributevalue.MarshalMap(toAV(item))
	if err != nil {
		return fmt.Errorf("dynamorecord: marshaling item: %w", err)
	}
	if _, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.Table), Item: av}); err != nil {
		return fmt.Errorf("dynamorecord: put: %w", err)
	}
	return nil
}

// fieldAttr maps a patch field name to its DynamoDB attribute name.
var fieldAttr = map[string]string{
	"status":          "status",
	"stage":           "stage",
	"title":           "title",
	"transcribeKey":   "transcribeKey",
	"whisperKey":      "whisperKey",
	"funasrKey":       "funasrKey",
	"reportKey":       "reportKey",
	"pdfKey":          "pdfKey",
	"durationSeconds": "durationSeconds",
	"errorMessage":    "errorMessage",
	"updatedAt":       "updatedAt",
	"exportedAt":      "exportedAt",
}

func (s *Store) Update(ctx context.Context, key model.RecordKey, patch *model.MeetingRecord, fields []string, condition model.Status) error {
	keyAV, err := keyAttributes(key)
	if err != nil {
		return fmt.Errorf("dynamorecord: marshaling key: %w", err)
	}

	patchAV, err := attributevalue.MarshalMap(toAV(patch))
	if err != nil {
		return fmt.Errorf("dynamorecord: marshaling patch: %w", err)
	}

	setExpr := "SET "
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	for i, f := range fields {
		attr, ok := fieldAttr[f]
		if !ok {
			return fmt.Errorf("dynamorecord: unknown update field %q", f)
		}
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		if i > 0 {
			setExpr += ", "
		}
		setExpr += nameKey + " = " + valueKey
		names[nameKey] = attr
		val, ok := patchAV[attr]
		if !ok {
			val = &types.AttributeValueMemberNULL{Value: true}
		}
		values[valueKey] = val
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.Table),
		Key:                       keyAV,
		UpdateExpression:          aws.String(setExpr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	if condition != "" {
		names["#status"] = "status"
		values[":cond"] = &types.AttributeValueMemberS{Value: string(condition)}
		in.ConditionExpression = aws.String("#status = :cond")
	}

	_, err = s.Client.UpdateItem(ctx, in)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ports.ErrConditionFailed
		}
		return fmt.Errorf("dynamorecord: update: %w", err)
	}
	return nil
}

// GlossaryStore adapts a separate glossary-term table to ports.Glossary. It
// is intentionally split from Store: the glossary table has its own name and
// is scanned in full rather than keyed, per ports.Glossary's doc comment.
type GlossaryStore struct {
	Client API
	Table  string
}

// NewGlossaryStore wraps client as a ports.Glossary over table.
func NewGlossaryStore(client API, table string) *GlossaryStore {
	return &GlossaryStore{Client: client, Table: table}
}

// termAV mirrors model.GlossaryTerm with CreatedAt as an RFC3339Nano string,
// for the same reason recordAV exists: attributevalue has no time.Time codec.
type termAV struct {
	TermID     string   `dynamodbav:"termId"`
	Term       string   `dynamodbav:"term"`
	Aliases    []string `dynamodbav:"aliases,omitempty"`
	Definition string   `dynamodbav:"definition,omitempty"`
	CreatedAt  string   `dynamodbav:"createdAt"`
}

func (g *GlossaryStore) ScanAll(ctx context.Context) ([]model.GlossaryTerm, error) {
	var terms []model.GlossaryTerm
	var startKey map[string]types.AttributeValue

	for {
		out, err := g.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(g.Table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamorecord: glossary scan: %w", err)
		}

		for _, item := range out.Items {
			var av termAV
			if err := attributevalue.UnmarshalMap(item, &av); err != nil {
				return nil, fmt.Errorf("dynamorecord: unmarshaling glossary item: %w", err)
			}
			createdAt, err := time.Parse(rfc3339Nano, av.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("parsing glossary createdAt %q: %w", av.CreatedAt, err)
			}
			terms = append(terms, model.GlossaryTerm{
				TermID:     av.TermID,
				Term:       av.Term,
				Aliases:    av.Aliases,
				Definition: av.Definition,
				CreatedAt:  createdAt,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return terms, nil
}

func (s *Store) Query(ctx context.Context, status model.Status, filter *ports.QueryFilter, limit int) ([]*model.MeetingRecord, error) {
	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{":status": &types.AttributeValueMemberS{Value: string(status)}}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.Table),
		IndexName:                 aws.String(s.StatusIndex),
		KeyConditionExpression:    aws.String("#status = :status"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if filter != nil {
		names["#filterAttr"] = filter.Attribute
		values[":filterValue"] = &types.AttributeValueMemberS{Value: filter.Value}
		in.FilterExpression = aws.String("#filterAttr = :filterValue")
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := s.Client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("dynamorecord: query: %w", err)
	}

	recs := make([]*model.MeetingRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var av recordAV
		if err := attributevalue.UnmarshalMap(item, &av); err != nil {
			return nil, fmt.Errorf("dynamorecord: unmarshaling query item: %w", err)
		}
		rec, err := fromAV(av)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
