package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"sales-agent/internal/domain"
)

// SnapshotTable stores one document per session, keyed by "session_uuid".
type SnapshotTable struct {
	api       dynamodbAPI
	tableName string
}

func NewSnapshotTable(api dynamodbAPI, tableName string) (*SnapshotTable, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &SnapshotTable{api: api, tableName: tableName}, nil
}

// SaveSnapshot writes or replaces the snapshot for its session.
func (t *SnapshotTable) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if strings.TrimSpace(snap.SessionID) == "" {
		return errors.New("repository: SaveSnapshot: session id is required")
	}
	_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      snapshotItem(snap),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveSnapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored snapshot, or nil when the session has none.
func (t *SnapshotTable) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	out, err := t.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"session_uuid": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetSnapshot get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	snap, err := itemToSnapshot(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetSnapshot decode: %w", err)
	}
	return &snap, nil
}

// ListModels returns the distinct model_used values across all snapshots,
// sorted. Snapshots without a model are ignored.
func (t *SnapshotTable) ListModels(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := t.scan(ctx, &dynamodb.ScanInput{
		ProjectionExpression:     aws.String("#m"),
		ExpressionAttributeNames: map[string]string{"#m": "model_used"},
	}, func(item map[string]types.AttributeValue) {
		if m, err := strAttr(item, "model_used"); err == nil && m != "" {
			seen[m] = struct{}{}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListModels: %w", err)
	}
	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	slices.Sort(models)
	return models, nil
}

// ListSnapshots returns every snapshot, or only those produced by model when
// it is not empty. Malformed items are skipped with a warning.
func (t *SnapshotTable) ListSnapshots(ctx context.Context, model string) ([]domain.Snapshot, error) {
	in := &dynamodb.ScanInput{}
	if model != "" {
		in.FilterExpression = aws.String("#m = :m")
		in.ExpressionAttributeNames = map[string]string{"#m": "model_used"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":m": &types.AttributeValueMemberS{Value: model},
		}
	}
	var snaps []domain.Snapshot
	err := t.scan(ctx, in, func(item map[string]types.AttributeValue) {
		snap, err := itemToSnapshot(item)
		if err != nil {
			slog.Warn("repository: skipping malformed snapshot item", "table", t.tableName, "err", err)
			return
		}
		snaps = append(snaps, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListSnapshots: %w", err)
	}
	return snaps, nil
}

// scan pages through the table with in as the template, calling fn per item.
func (t *SnapshotTable) scan(ctx context.Context, in *dynamodb.ScanInput, fn func(map[string]types.AttributeValue)) error {
	var startKey map[string]types.AttributeValue
	for {
		page := *in
		page.TableName = aws.String(t.tableName)
		page.ExclusiveStartKey = startKey
		out, err := t.api.Scan(ctx, &page)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if out == nil {
			return nil
		}
		for _, item := range out.Items {
			fn(item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func snapshotItem(snap domain.Snapshot) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_uuid": &types.AttributeValueMemberS{Value: snap.SessionID},
		"final_state":  &types.AttributeValueMemberS{Value: string(snap.FinalState)},
		"model_used":   &types.AttributeValueMemberS{Value: snap.ModelUsed},
		"timestamp":    &types.AttributeValueMemberS{Value: snap.Timestamp.UTC().Format(time.RFC3339)},
		"cart_items":   &types.AttributeValueMemberN{Value: strconv.Itoa(snap.CartItemCount)},
		"total_value":  &types.AttributeValueMemberN{Value: snap.TotalValue.String()},
	}
}

func itemToSnapshot(item map[string]types.AttributeValue) (domain.Snapshot, error) {
	id, err := strAttr(item, "session_uuid")
	if err != nil {
		return domain.Snapshot{}, err
	}
	state, err := strAttr(item, "final_state")
	if err != nil {
		return domain.Snapshot{}, err
	}
	model, _ := strAttr(item, "model_used") // allow empty
	rawTS, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.Snapshot{}, err
	}
	ts, err := time.Parse(time.RFC3339, rawTS)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("repository: parse attribute %q: %w", "timestamp", err)
	}
	items, err := intAttr(item, "cart_items")
	if err != nil {
		return domain.Snapshot{}, err
	}
	rawTotal, err := numAttr(item, "total_value")
	if err != nil {
		return domain.Snapshot{}, err
	}
	total, err := decimal.NewFromString(rawTotal)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("repository: parse attribute %q: %w", "total_value", err)
	}
	return domain.Snapshot{
		SessionID:     id,
		FinalState:    domain.State(state),
		ModelUsed:     model,
		Timestamp:     ts,
		CartItemCount: items,
		TotalValue:    total,
	}, nil
}
