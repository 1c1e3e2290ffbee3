package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"tutor-gateway/internal/domain"
)

type fakeDynamo struct {
	putErr      error
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	putInputs   []*dynamodb.PutItemInput
	lastQueryIn *dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, f.queryErr
	}
	return f.queryOut, f.queryErr
}

func attrS(item map[string]types.AttributeValue, key string) string {
	v, ok := item[key].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return v.Value
}

func turnItemFor(role, content, createdAt string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: "USER#alice#CONV#c1"},
		"SK":             &types.AttributeValueMemberS{Value: skPrefixTurn + createdAt},
		"conversationId": &types.AttributeValueMemberS{Value: "c1"},
		"role":           &types.AttributeValueMemberS{Value: role},
		"content":        &types.AttributeValueMemberS{Value: content},
		"speakLanguage":  &types.AttributeValueMemberS{Value: "English"},
		"answerLanguage": &types.AttributeValueMemberS{Value: "English"},
		"createdAt":      &types.AttributeValueMemberS{Value: createdAt},
		"ttl":            &types.AttributeValueMemberN{Value: "123"},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "turns")
	require.Error(t, err)

	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)

	c, err := New(&fakeDynamo{}, "turns")
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestTouchConversation(t *testing.T) {
	api := &fakeDynamo{}
	c, err := New(api, "turns")
	require.NoError(t, err)

	require.NoError(t, c.TouchConversation(context.Background(), "alice", "c1"))
	require.Len(t, api.putInputs, 1)

	in := api.putInputs[0]
	require.Equal(t, "turns", *in.TableName)
	require.Equal(t, "USER#alice#CONV#c1", attrS(in.Item, "PK"))
	require.Equal(t, skMeta, attrS(in.Item, "SK"))
	require.Equal(t, "alice", attrS(in.Item, "owner"))
	require.Equal(t, "c1", attrS(in.Item, "conversationId"))
	require.NotEmpty(t, attrS(in.Item, "lastActivity"))
}

func TestTouchConversation_RequiresOwnerAndConversation(t *testing.T) {
	c, err := New(&fakeDynamo{}, "turns")
	require.NoError(t, err)

	require.Error(t, c.TouchConversation(context.Background(), "", "c1"))
	require.Error(t, c.TouchConversation(context.Background(), "alice", ""))
}

func TestTouchConversation_ApiError(t *testing.T) {
	api := &fakeDynamo{putErr: errors.New("throttled")}
	c, err := New(api, "turns")
	require.NoError(t, err)

	err = c.TouchConversation(context.Background(), "alice", "c1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "TouchConversation")
}

func TestAppendTurn(t *testing.T) {
	api := &fakeDynamo{}
	c, err := New(api, "turns")
	require.NoError(t, err)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	turn := domain.Turn{
		Role:           domain.RoleUser,
		Content:        "hello",
		SpeakLanguage:  "English",
		AnswerLanguage: "Spanish",
		CreatedAt:      created,
	}
	require.NoError(t, c.AppendTurn(context.Background(), "alice", "c1", turn))
	require.Len(t, api.putInputs, 1)

	in := api.putInputs[0]
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *in.ConditionExpression)
	require.Equal(t, "USER#alice#CONV#c1", attrS(in.Item, "PK"))
	require.Equal(t, skPrefixTurn+created.Format(skTimeLayout), attrS(in.Item, "SK"))
	require.Equal(t, domain.RoleUser, attrS(in.Item, "role"))
	require.Equal(t, "hello", attrS(in.Item, "content"))
	require.Equal(t, "English", attrS(in.Item, "speakLanguage"))
	require.Equal(t, "Spanish", attrS(in.Item, "answerLanguage"))
}

func TestAppendTurn_Validation(t *testing.T) {
	c, err := New(&fakeDynamo{}, "turns")
	require.NoError(t, err)

	turn := domain.Turn{Role: domain.RoleUser, Content: "hi"}
	require.Error(t, c.AppendTurn(context.Background(), "", "c1", turn))
	require.Error(t, c.AppendTurn(context.Background(), "alice", "", turn))
	require.Error(t, c.AppendTurn(context.Background(), "alice", "c1", domain.Turn{Content: "hi"}))
	require.Error(t, c.AppendTurn(context.Background(), "alice", "c1", domain.Turn{Role: domain.RoleUser, Content: "  "}))
}

func TestAppendTurn_DefaultsCreatedAt(t *testing.T) {
	api := &fakeDynamo{}
	c, err := New(api, "turns")
	require.NoError(t, err)

	turn := domain.Turn{Role: domain.RoleAssistant, Content: "hi"}
	require.NoError(t, c.AppendTurn(context.Background(), "alice", "c1", turn))
	require.NotEqual(t, skPrefixTurn, attrS(api.putInputs[0].Item, "SK"))
	require.NotEmpty(t, attrS(api.putInputs[0].Item, "createdAt"))
}

func TestListTurns_QueryShapeAndOrdering(t *testing.T) {
	// query returns newest first; the client restores chronological order
	api := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		turnItemFor(domain.RoleAssistant, "second", "2026-01-02T00:00:01Z"),
		turnItemFor(domain.RoleUser, "first", "2026-01-02T00:00:00Z"),
	}}}
	c, err := New(api, "turns")
	require.NoError(t, err)

	turns, err := c.ListTurns(context.Background(), "alice", "c1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "first", turns[0].Content)
	require.Equal(t, "second", turns[1].Content)
	require.Equal(t, domain.RoleUser, turns[0].Role)
	require.Equal(t, "c1", turns[0].ConversationID)

	q := api.lastQueryIn
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *q.KeyConditionExpression)
	require.Equal(t, "USER#alice#CONV#c1", q.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skPrefixTurn, q.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value)
	require.False(t, *q.ScanIndexForward)
	require.Equal(t, int32(10), *q.Limit)
}

func TestListTurns_DefaultLimit(t *testing.T) {
	api := &fakeDynamo{}
	c, err := New(api, "turns")
	require.NoError(t, err)

	_, err = c.ListTurns(context.Background(), "alice", "c1", 0)
	require.NoError(t, err)
	require.Equal(t, int32(50), *api.lastQueryIn.Limit)
}

func TestListTurns_QueryError(t *testing.T) {
	api := &fakeDynamo{queryErr: errors.New("boom")}
	c, err := New(api, "turns")
	require.NoError(t, err)

	_, err = c.ListTurns(context.Background(), "alice", "c1", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ListTurns")
}

func TestListTurns_MalformedItem(t *testing.T) {
	item := turnItemFor(domain.RoleUser, "hello", "2026-01-02T00:00:00Z")
	delete(item, "content")
	api := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	c, err := New(api, "turns")
	require.NoError(t, err)

	_, err = c.ListTurns(context.Background(), "alice", "c1", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "content")
}

func TestItemToTurn_OptionalAttributes(t *testing.T) {
	item := turnItemFor(domain.RoleUser, "hello", "2026-01-02T00:00:00Z")
	delete(item, "speakLanguage")
	delete(item, "answerLanguage")

	turn, err := itemToTurn(item)
	require.NoError(t, err)
	require.Empty(t, turn.SpeakLanguage)
	require.Empty(t, turn.AnswerLanguage)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), turn.CreatedAt)
}

func TestConversationPK(t *testing.T) {
	require.Equal(t, "USER#alice#CONV#c1", conversationPK("alice", "c1"))
}

func TestTurnSK_SortsChronologically(t *testing.T) {
	earlier := turnSK(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	later := turnSK(time.Date(2026, 1, 2, 3, 4, 5, int(time.Millisecond), time.UTC))
	require.Less(t, earlier, later)
}
