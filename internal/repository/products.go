package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"sales-agent/internal/domain"
)

// ProductTable is the catalog store. Items are keyed by "id".
type ProductTable struct {
	api       dynamodbAPI
	tableName string
}

func NewProductTable(api dynamodbAPI, tableName string) (*ProductTable, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ProductTable{api: api, tableName: tableName}, nil
}

// ListProducts scans the whole table. Items missing a required attribute are
// skipped with a warning.
func (t *ProductTable) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var (
		products []domain.Product
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := t.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(t.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListProducts scan: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			p, err := itemToProduct(item)
			if err != nil {
				slog.Warn("repository: skipping malformed product item", "table", t.tableName, "err", err)
				continue
			}
			products = append(products, p)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return products, nil
}

// Seed writes products when the table holds none and reports how many were
// written. Existing ids are never overwritten.
func (t *ProductTable) Seed(ctx context.Context, products []domain.Product) (int, error) {
	existing, err := t.api.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(t.tableName),
		Limit:     aws.Int32(1),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: Seed scan: %w", err)
	}
	if existing != nil && len(existing.Items) > 0 {
		return 0, nil
	}

	written := 0
	for _, p := range products {
		_, err := t.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(t.tableName),
			Item:                productItem(p),
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			return written, fmt.Errorf("repository: Seed put %q: %w", p.ID, err)
		}
		written++
	}
	return written, nil
}

func productItem(p domain.Product) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":       &types.AttributeValueMemberS{Value: p.ID},
		"name":     &types.AttributeValueMemberS{Value: p.Name},
		"price":    &types.AttributeValueMemberS{Value: p.Price},
		"category": &types.AttributeValueMemberS{Value: p.Category},
	}
}

func itemToProduct(item map[string]types.AttributeValue) (domain.Product, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Product{}, err
	}
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Product{}, err
	}
	price, err := strAttr(item, "price")
	if err != nil {
		if n, numErr := numAttr(item, "price"); numErr == nil {
			price = n
		} else {
			return domain.Product{}, err
		}
	}
	category, _ := strAttr(item, "category") // allow empty
	return domain.Product{ID: id, Name: name, Price: price, Category: category}, nil
}
