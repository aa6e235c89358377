// Package store provides the persistence adapters: DynamoDB and S3 for
// deployed runs, SQLite for local ones.
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/suoware/blogwatch"
)

// batchWriteChunkSize is the provider's per-request item limit.
const batchWriteChunkSize = 25

// DynamoStore persists posts and category history in two DynamoDB tables.
type DynamoStore struct {
	client          *dynamodb.Client
	postsTable      string
	categoriesTable string
}

// NewDynamoStore creates a store over the given tables.
func NewDynamoStore(client *dynamodb.Client, postsTable, categoriesTable string) *DynamoStore {
	return &DynamoStore{
		client:          client,
		postsTable:      postsTable,
		categoriesTable: categoriesTable,
	}
}

// GetPostsByDate returns every post recorded for the given date.
func (s *DynamoStore) GetPostsByDate(ctx context.Context, date string) ([]blogwatch.PostRecord, error) {
	return s.scanPosts(ctx, "#date = :date", map[string]string{"#date": "date"},
		map[string]types.AttributeValue{
			":date": &types.AttributeValueMemberS{Value: date},
		})
}

// GetUnprocessedPostsByDate returns posts for the date that have not been
// categorized yet.
func (s *DynamoStore) GetUnprocessedPostsByDate(ctx context.Context, date string) ([]blogwatch.PostRecord, error) {
	return s.scanPosts(ctx, "#date = :date AND attribute_not_exists(#proc)",
		map[string]string{"#date": "date", "#proc": "processed"},
		map[string]types.AttributeValue{
			":date": &types.AttributeValueMemberS{Value: date},
		})
}

func (s *DynamoStore) scanPosts(ctx context.Context, filter string, names map[string]string, values map[string]types.AttributeValue) ([]blogwatch.PostRecord, error) {
	var posts []blogwatch.PostRecord

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.postsTable),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table %s: %w", s.postsTable, err)
		}

		var pagePosts []blogwatch.PostRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pagePosts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal posts: %w", err)
		}
		posts = append(posts, pagePosts...)
	}

	return posts, nil
}

// UpsertPost writes one post, assigning an ID if the record has none.
func (s *DynamoStore) UpsertPost(ctx context.Context, post *blogwatch.PostRecord) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}

	item, err := attributevalue.MarshalMap(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post %s: %w", post.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.postsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put post %s: %w", post.ID, err)
	}
	return nil
}

// BatchUpsertPosts writes many posts in chunks. Fields an incoming record
// leaves empty are preserved from any existing record with the same ID.
func (s *DynamoStore) BatchUpsertPosts(ctx context.Context, posts []blogwatch.PostRecord) error {
	if len(posts) == 0 {
		return nil
	}

	existing, err := s.existingByID(ctx, posts)
	if err != nil {
		return err
	}

	for i := range posts {
		if posts[i].ID == "" {
			posts[i].ID = uuid.New().String()
		}
		if prev, ok := existing[posts[i].ID]; ok {
			posts[i] = mergeRecords(prev, posts[i])
		}
	}

	for _, chunk := range chunkRecords(posts, batchWriteChunkSize) {
		if err := s.writeChunk(ctx, chunk); err != nil {
			return err
		}
	}

	log.Info().Int("posts", len(posts)).Str("table", s.postsTable).Msg("Batch upsert complete")
	return nil
}

// existingByID loads current records for the incoming IDs so the write can
// preserve fields the caller does not specify.
func (s *DynamoStore) existingByID(ctx context.Context, posts []blogwatch.PostRecord) (map[string]blogwatch.PostRecord, error) {
	existing := make(map[string]blogwatch.PostRecord)
	for _, post := range posts {
		if post.ID == "" {
			continue
		}

		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.postsTable),
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: post.ID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get post %s: %w", post.ID, err)
		}
		if len(out.Item) == 0 {
			continue
		}

		var prev blogwatch.PostRecord
		if err := attributevalue.UnmarshalMap(out.Item, &prev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal post %s: %w", post.ID, err)
		}
		existing[prev.ID] = prev
	}
	return existing, nil
}

// writeChunk issues one BatchWriteItem, retrying unprocessed items with
// exponential backoff until they drain.
func (s *DynamoStore) writeChunk(ctx context.Context, chunk []blogwatch.PostRecord) error {
	requests := make([]types.WriteRequest, 0, len(chunk))
	for _, post := range chunk {
		item, err := attributevalue.MarshalMap(post)
		if err != nil {
			return fmt.Errorf("failed to marshal post %s: %w", post.ID, err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	pending := map[string][]types.WriteRequest{s.postsTable: requests}
	operation := func() error {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to batch write to %s: %w", s.postsTable, err))
		}
		if len(out.UnprocessedItems) > 0 {
			pending = out.UnprocessedItems
			return fmt.Errorf("%d unprocessed items remain", len(out.UnprocessedItems[s.postsTable]))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

// AppendCategoriesForDate inserts a new history record. Earlier records for
// the same date are left untouched.
func (s *DynamoStore) AppendCategoriesForDate(ctx context.Context, date string, categories []string) error {
	assignment := blogwatch.CategoryAssignment{
		ID:         uuid.New().String(),
		Date:       date,
		Categories: categories,
	}

	item, err := attributevalue.MarshalMap(assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal category assignment: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.categoriesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to append categories for %s: %w", date, err)
	}
	return nil
}

// chunkRecords splits records into slices of at most size elements.
func chunkRecords(records []blogwatch.PostRecord, size int) [][]blogwatch.PostRecord {
	var chunks [][]blogwatch.PostRecord
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}

// mergeRecords overlays incoming onto prev, keeping prev's value wherever
// incoming leaves a field empty.
func mergeRecords(prev, incoming blogwatch.PostRecord) blogwatch.PostRecord {
	merged := incoming
	if merged.Title == "" {
		merged.Title = prev.Title
	}
	if merged.URL == "" {
		merged.URL = prev.URL
	}
	if merged.Author == "" {
		merged.Author = prev.Author
	}
	if merged.PublishedDate == "" {
		merged.PublishedDate = prev.PublishedDate
	}
	if merged.Description == "" {
		merged.Description = prev.Description
	}
	if len(merged.Category) == 0 {
		merged.Category = prev.Category
	}
	if merged.Summary == "" {
		merged.Summary = prev.Summary
	}
	if !merged.Processed {
		merged.Processed = prev.Processed
	}
	return merged
}
