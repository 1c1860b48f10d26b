// Package dynamo is a document store backed by Amazon DynamoDB.
//
// Each collection maps to its own table named <prefix>-<collection> with a
// string hash key "id". DynamoDB writes are durable once acknowledged, so
// Commit is a no-op.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/JonMunkholm/docingest/internal/document"
)

// MaxBatchItems is the BatchWriteItem request limit.
const MaxBatchItems = 25

// KeyAttribute is the table hash key.
const KeyAttribute = "id"

const (
	defaultMaxRetries = 5
	baseRetryDelay    = 50 * time.Millisecond
	tableActiveWait   = 2 * time.Minute
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// ErrUnprocessed is returned when items remain unprocessed after every retry.
var ErrUnprocessed = errors.New("dynamodb left items unprocessed")

// Store writes documents to DynamoDB tables.
type Store struct {
	client       API
	tablePrefix  string
	maxRetries   int
	sleep        func(context.Context, time.Duration) error
	createTables bool
	ensured      sync.Map // table name -> struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithCreateTables makes the first write to a collection create its table.
func WithCreateTables() Option {
	return func(s *Store) { s.createTables = true }
}

// WithMaxRetries sets how often unprocessed items are resubmitted.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// New creates a Store. Tables are named prefix + "-" + collection, or just
// collection when prefix is empty.
func New(client API, tablePrefix string, opts ...Option) *Store {
	s := &Store{
		client:      client,
		tablePrefix: tablePrefix,
		maxRetries:  defaultMaxRetries,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TableName returns the table holding collection.
func (s *Store) TableName(collection string) string {
	if s.tablePrefix == "" {
		return collection
	}
	return s.tablePrefix + "-" + collection
}

// Add writes docs with BatchWriteItem in chunks of MaxBatchItems,
// resubmitting unprocessed items with exponential backoff.
func (s *Store) Add(ctx context.Context, collection string, docs []document.Document) error {
	if err := s.ensure(ctx, collection); err != nil {
		return err
	}
	table := s.TableName(collection)

	for from := 0; from < len(docs); from += MaxBatchItems {
		to := min(from+MaxBatchItems, len(docs))

		requests := make([]types.WriteRequest, 0, to-from)
		for i, doc := range docs[from:to] {
			item, err := marshalItem(doc)
			if err != nil {
				return fmt.Errorf("marshal document %d: %w", from+i, err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		if err := s.batchWrite(ctx, table, requests); err != nil {
			return err
		}
	}
	return nil
}

// AddOne writes a single document with PutItem.
func (s *Store) AddOne(ctx context.Context, collection string, doc document.Document) error {
	if err := s.ensure(ctx, collection); err != nil {
		return err
	}
	item, err := marshalItem(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.TableName(collection)),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Commit is a no-op.
func (s *Store) Commit(context.Context, string) error {
	return nil
}

// ensure creates the collection's table once when WithCreateTables is set.
func (s *Store) ensure(ctx context.Context, collection string) error {
	if !s.createTables {
		return nil
	}
	table := s.TableName(collection)
	if _, ok := s.ensured.Load(table); ok {
		return nil
	}
	if err := s.EnsureTable(ctx, collection); err != nil {
		return err
	}
	s.ensured.Store(table, struct{}{})
	return nil
}

// EnsureTable creates the collection's table if it does not exist and waits
// for it to become active.
func (s *Store) EnsureTable(ctx context.Context, collection string) error {
	table := s.TableName(collection)

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(KeyAttribute), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(KeyAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableActiveWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

func (s *Store) batchWrite(ctx context.Context, table string, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: requests}

	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write: %w", err)
		}

		pending = out.UnprocessedItems
		if len(pending[table]) == 0 {
			return nil
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("%w: %d items after %d retries", ErrUnprocessed, len(pending[table]), attempt)
		}

		if err := s.sleep(ctx, baseRetryDelay<<attempt); err != nil {
			return err
		}
	}
}

// marshalItem converts a document into an item keyed by its id. Documents
// without an id get a random one.
func marshalItem(doc document.Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(doc.Map())
	if err != nil {
		return nil, err
	}

	id, ok := doc.ID()
	if !ok {
		id = uuid.NewString()
	}
	item[KeyAttribute] = &types.AttributeValueMemberS{Value: id}
	return item, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
