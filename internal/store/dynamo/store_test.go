package dynamo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JonMunkholm/docingest/internal/document"
)

// =============================================================================
// Fake client
// =============================================================================

type fakeDynamo struct {
	batches [][]types.WriteRequest
	puts    []*dynamodb.PutItemInput
	created []string

	// unprocessed is how many items each BatchWriteItem call hands back.
	unprocessed []int
	batchErr    error
	putErr      error
	tables      map[string]bool
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		f.batches = append(f.batches, reqs)
		call := len(f.batches) - 1
		if call < len(f.unprocessed) && f.unprocessed[call] > 0 {
			n := min(f.unprocessed[call], len(reqs))
			out.UnprocessedItems[table] = reqs[len(reqs)-n:]
		}
	}
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.tables[aws.ToString(in.TableName)] {
		return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		}}, nil
	}
	return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, aws.ToString(in.TableName))
	if f.tables == nil {
		f.tables = map[string]bool{}
	}
	f.tables[aws.ToString(in.TableName)] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func newTestStore(client API, opts ...Option) *Store {
	s := New(client, "docingest", opts...)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func makeDocs(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		var b document.Builder
		b.Add("id", fmt.Sprintf("doc-%d", i))
		b.Add("n", int32(i))
		docs[i] = b.Build()
	}
	return docs
}

// =============================================================================
// Tests
// =============================================================================

func TestStore_TableName(t *testing.T) {
	if got := New(nil, "prod").TableName("books"); got != "prod-books" {
		t.Errorf("TableName = %q, want prod-books", got)
	}
	if got := New(nil, "").TableName("books"); got != "books" {
		t.Errorf("TableName = %q, want books", got)
	}
}

func TestStore_AddChunks(t *testing.T) {
	tests := []struct {
		docs      int
		wantSizes []int
	}{
		{1, []int{1}},
		{25, []int{25}},
		{26, []int{25, 1}},
		{60, []int{25, 25, 10}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.docs), func(t *testing.T) {
			fake := &fakeDynamo{}
			if err := newTestStore(fake).Add(context.Background(), "books", makeDocs(tt.docs)); err != nil {
				t.Fatalf("Add: %v", err)
			}

			var sizes []int
			for _, b := range fake.batches {
				sizes = append(sizes, len(b))
			}
			if diff := cmp.Diff(tt.wantSizes, sizes); diff != "" {
				t.Errorf("chunk sizes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_AddRetriesUnprocessed(t *testing.T) {
	fake := &fakeDynamo{unprocessed: []int{3, 1}}
	if err := newTestStore(fake).Add(context.Background(), "books", makeDocs(5)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var sizes []int
	for _, b := range fake.batches {
		sizes = append(sizes, len(b))
	}
	if diff := cmp.Diff([]int{5, 3, 1}, sizes); diff != "" {
		t.Errorf("attempt sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_AddGivesUpOnUnprocessed(t *testing.T) {
	fake := &fakeDynamo{unprocessed: []int{1, 1, 1, 1, 1, 1, 1, 1}}
	err := newTestStore(fake).Add(context.Background(), "books", makeDocs(2))
	if !errors.Is(err, ErrUnprocessed) {
		t.Fatalf("err = %v, want ErrUnprocessed", err)
	}
	if got := len(fake.batches); got != defaultMaxRetries+1 {
		t.Errorf("BatchWriteItem called %d times, want %d", got, defaultMaxRetries+1)
	}
}

func TestStore_AddError(t *testing.T) {
	fake := &fakeDynamo{batchErr: errors.New("throttled")}
	if err := newTestStore(fake).Add(context.Background(), "books", makeDocs(3)); err == nil {
		t.Fatal("expected error")
	}
}

func TestStore_AddOne(t *testing.T) {
	fake := &fakeDynamo{}
	var b document.Builder
	b.Add("id", int32(42))
	b.Add("title", "Go")
	b.AddAll("tags", []any{"a", "b"})

	if err := newTestStore(fake).AddOne(context.Background(), "books", b.Build()); err != nil {
		t.Fatalf("AddOne: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("PutItem called %d times, want 1", len(fake.puts))
	}

	put := fake.puts[0]
	if got := aws.ToString(put.TableName); got != "docingest-books" {
		t.Errorf("TableName = %q", got)
	}

	var item struct {
		ID    string   `dynamodbav:"id"`
		Title string   `dynamodbav:"title"`
		Tags  []string `dynamodbav:"tags"`
	}
	if err := attributevalue.UnmarshalMap(put.Item, &item); err != nil {
		t.Fatalf("UnmarshalMap: %v", err)
	}
	want := struct {
		ID    string   `dynamodbav:"id"`
		Title string   `dynamodbav:"title"`
		Tags  []string `dynamodbav:"tags"`
	}{ID: "42", Title: "Go", Tags: []string{"a", "b"}}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_AddOneGeneratesID(t *testing.T) {
	fake := &fakeDynamo{}
	var b document.Builder
	b.Add("title", "untitled")

	if err := newTestStore(fake).AddOne(context.Background(), "books", b.Build()); err != nil {
		t.Fatalf("AddOne: %v", err)
	}

	id, ok := fake.puts[0].Item[KeyAttribute].(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("id attribute = %T, want string", fake.puts[0].Item[KeyAttribute])
	}
	if _, err := uuid.Parse(id.Value); err != nil {
		t.Errorf("generated id %q is not a UUID", id.Value)
	}
}

func TestStore_Commit(t *testing.T) {
	if err := newTestStore(&fakeDynamo{}).Commit(context.Background(), "books"); err != nil {
		t.Errorf("Commit: %v", err)
	}
}

func TestStore_EnsureTable(t *testing.T) {
	fake := &fakeDynamo{tables: map[string]bool{"docingest-existing": true}}
	s := newTestStore(fake)

	if err := s.EnsureTable(context.Background(), "existing"); err != nil {
		t.Fatalf("EnsureTable existing: %v", err)
	}
	if err := s.EnsureTable(context.Background(), "fresh"); err != nil {
		t.Fatalf("EnsureTable fresh: %v", err)
	}

	if diff := cmp.Diff([]string{"docingest-fresh"}, fake.created); diff != "" {
		t.Errorf("created tables mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_CreateTablesOnFirstWrite(t *testing.T) {
	fake := &fakeDynamo{}
	s := newTestStore(fake, WithCreateTables())

	for i := 0; i < 3; i++ {
		if err := s.Add(context.Background(), "books", makeDocs(2)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := s.AddOne(context.Background(), "news", makeDocs(1)[0]); err != nil {
		t.Fatalf("AddOne: %v", err)
	}

	want := []string{"docingest-books", "docingest-news"}
	if diff := cmp.Diff(want, fake.created); diff != "" {
		t.Errorf("created tables mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_WithoutCreateTables(t *testing.T) {
	fake := &fakeDynamo{}
	if err := newTestStore(fake).Add(context.Background(), "books", makeDocs(1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(fake.created) != 0 {
		t.Errorf("created = %v, want none", fake.created)
	}
}

func TestStore_WithMaxRetries(t *testing.T) {
	fake := &fakeDynamo{unprocessed: []int{1, 1, 1}}
	err := newTestStore(fake, WithMaxRetries(1)).Add(context.Background(), "books", makeDocs(2))
	if !errors.Is(err, ErrUnprocessed) {
		t.Fatalf("err = %v, want ErrUnprocessed", err)
	}
	if got := len(fake.batches); got != 2 {
		t.Errorf("BatchWriteItem called %d times, want 2", got)
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
