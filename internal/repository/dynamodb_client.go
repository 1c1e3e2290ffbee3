package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tutor-gateway/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	ttlDuration  = 180 * 24 * time.Hour // conversations expire after ~6 months

	// Fixed-width fraction keeps sort keys lexicographically ordered;
	// RFC3339Nano drops trailing zeros and would break that.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a single DynamoDB table holding conversation turns and
// per-conversation metadata, keyed by (owner, conversation id).
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// conversationPK scopes a conversation to its owner so one user can never
// read or extend another user's conversation.
func conversationPK(owner, conversationID string) string {
	return "USER#" + owner + "#CONV#" + conversationID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(skTimeLayout)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// TouchConversation writes or replaces the conversation metadata record,
// refreshing its last-activity timestamp. Conversations are created lazily
// by this call on the first persisted turn pair.
func (c *Client) TouchConversation(ctx context.Context, owner, conversationID string) error {
	if owner == "" || conversationID == "" {
		return errors.New("repository: TouchConversation: owner and conversation id are required")
	}
	meta := domain.ConversationMeta{
		PK:             conversationPK(owner, conversationID),
		SK:             skMeta,
		ConversationID: conversationID,
		Owner:          owner,
		LastActivity:   time.Now().UTC().Format(time.RFC3339),
		TTL:            ttlValue(),
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      metaItem(meta),
	})
	if err != nil {
		return fmt.Errorf("repository: TouchConversation: %w", err)
	}
	return nil
}

// AppendTurn persists one turn. Turns are append-only; the condition guards
// against overwriting an existing sort key.
func (c *Client) AppendTurn(ctx context.Context, owner, conversationID string, turn domain.Turn) error {
	if owner == "" || conversationID == "" {
		return errors.New("repository: AppendTurn: owner and conversation id are required")
	}
	if turn.Role == "" || strings.TrimSpace(turn.Content) == "" {
		return errors.New("repository: AppendTurn: role and content are required")
	}
	created := turn.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	turn.PK = conversationPK(owner, conversationID)
	turn.SK = turnSK(created)
	turn.ConversationID = conversationID
	turn.CreatedAt = created
	turn.TTL = ttlValue()

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// ListTurns queries the most recent turns of a conversation and returns them
// in chronological order.
func (c *Client) ListTurns(ctx context.Context, owner, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: conversationPK(owner, conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so the limit keeps the most recent turns.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListTurns query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListTurns unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse back to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: turn.PK},
		"SK":             &types.AttributeValueMemberS{Value: turn.SK},
		"conversationId": &types.AttributeValueMemberS{Value: turn.ConversationID},
		"role":           &types.AttributeValueMemberS{Value: turn.Role},
		"content":        &types.AttributeValueMemberS{Value: turn.Content},
		"speakLanguage":  &types.AttributeValueMemberS{Value: turn.SpeakLanguage},
		"answerLanguage": &types.AttributeValueMemberS{Value: turn.AnswerLanguage},
		"createdAt":      &types.AttributeValueMemberS{Value: turn.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", turn.TTL)},
	}
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"owner":          &types.AttributeValueMemberS{Value: meta.Owner},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", meta.TTL)},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Turn{}, err
	}
	speakLanguage, _ := strAttr(item, "speakLanguage")   // allow empty
	answerLanguage, _ := strAttr(item, "answerLanguage") // allow empty

	turn := domain.Turn{
		PK:             pk,
		SK:             sk,
		Role:           role,
		Content:        content,
		SpeakLanguage:  speakLanguage,
		AnswerLanguage: answerLanguage,
	}
	if raw, err := strAttr(item, "createdAt"); err == nil {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			turn.CreatedAt = ts
		}
	}
	if id, err := strAttr(item, "conversationId"); err == nil {
		turn.ConversationID = id
	}
	return turn, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
