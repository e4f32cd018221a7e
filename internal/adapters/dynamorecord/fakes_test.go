// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package dynamorecord

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI is an in-memory stand-in for *dynamodb.Client, keyed on the string
// form of (meetingId, createdAt) so Update's ConditionExpression can be
// evaluated against whatever is already stored.
type fakeAPI struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeAPI() *fakeAPI { return &fakeAPI{items: map[string]map[string]types.AttributeValue{}} }

func itemKey(item map[string]types.AttributeValue) string {
	mid, _ := item["meetingId"].(*types.AttributeValueMemberS)
	created, _ := item["createdAt"].(*types.AttributeValueMemberS)
	m, c := "", ""
	if mid != nil {
		m = mid.Value
	}
	if created != nil {
		c = created.Value
	}
	return m + "|" + c
}

func (f *fakeAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[itemKey(in.Key)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := itemKey(in.Key)
	existing, ok := f.items[key]
	if !ok {
		existing = map[string]types.AttributeValue{}
		for k, v := range in.Key {
			existing[k] = v
		}
	}

	if in.ConditionExpression != nil {
		statusAttr := in.ExpressionAttributeNames["#status"]
		want, _ := in.ExpressionAttributeValues[":cond"].(*types.AttributeValueMemberS)
		got, _ := existing[statusAttr].(*types.AttributeValueMemberS)
		gotVal := ""
		if got != nil {
			gotVal = got.Value
		}
		if want == nil || gotVal != want.Value {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	for nameKey, attr := range in.ExpressionAttributeNames {
		if nameKey == "#status" && in.ConditionExpression != nil {
			continue
		}
		valueKey := ":v" + nameKey[2:]
		if val, ok := in.ExpressionAttributeValues[valueKey]; ok {
			existing[attr] = val
		}
	}
	f.items[key] = existing
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wantStatus, _ := in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS)
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		statusVal, _ := item["status"].(*types.AttributeValueMemberS)
		if statusVal == nil || wantStatus == nil || statusVal.Value != wantStatus.Value {
			continue
		}
		if in.FilterExpression != nil {
			filterAttr := in.ExpressionAttributeNames["#filterAttr"]
			wantFilter, _ := in.ExpressionAttributeValues[":filterValue"].(*types.AttributeValueMemberS)
			gotFilter, _ := item[filterAttr].(*types.AttributeValueMemberS)
			if gotFilter == nil || wantFilter == nil || gotFilter.Value != wantFilter.Value {
				continue
			}
		}
		out = append(out, item)
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		out = append(out, item)
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func mustMarshalMap(v any) map[string]types.AttributeValue {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		panic(err)
	}
	return av
}
