package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/splatgo/splatgo/blobstore"
)

// LatestPointer is the reserved blob name that resolves to the most recently
// committed checkpoint. Reads of this name go through DynamoDB; writes
// commit a new version with a conditional put.
const LatestPointer = "LATEST"

// ErrConcurrentCommit is returned when two writers race to commit the same
// checkpoint version.
var ErrConcurrentCommit = errors.New("concurrent checkpoint commit detected")

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBCommitStore wraps an S3 store with a DynamoDB commit log so concurrent
// trainers can hand off the latest-checkpoint pointer safely. S3 has no
// compare-and-swap; the conditional put on a monotonically increasing
// version number provides it.
//
// Table schema: partition key base_uri (S), sort key version (N).
type DDBCommitStore struct {
	blobs     *Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewDDBCommitStore wraps blobs with the DynamoDB commit log. baseURI is
// used as the partition key, typically "s3://bucket/prefix".
func NewDDBCommitStore(blobs *Store, ddb DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{blobs: blobs, ddb: ddb, tableName: tableName, baseURI: baseURI}
}

// Get reads a blob; LatestPointer resolves through DynamoDB to the name of
// the latest committed checkpoint.
func (s *DDBCommitStore) Get(ctx context.Context, name string) ([]byte, error) {
	if name != LatestPointer {
		return s.blobs.Get(ctx, name)
	}
	version, target, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return []byte(target), nil
}

// Put writes a blob; LatestPointer commits data as the new latest
// checkpoint name.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != LatestPointer {
		return s.blobs.Put(ctx, name, data)
	}
	return s.commit(ctx, string(data))
}

// Delete removes a blob. The pointer itself cannot be deleted.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name == LatestPointer {
		return fmt.Errorf("blobstore: %q is managed by the commit log", LatestPointer)
	}
	return s.blobs.Delete(ctx, name)
}

// List returns blob names with the prefix, sorted.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.blobs.List(ctx, prefix)
}

func (s *DDBCommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("blobstore: query commit log: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("blobstore: invalid version attribute in commit log")
	}
	targetAttr, ok := item["checkpoint"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("blobstore: invalid checkpoint attribute in commit log")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("blobstore: parse commit version: %w", err)
	}
	return version, targetAttr.Value, nil
}

func (s *DDBCommitStore) commit(ctx context.Context, checkpointName string) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":   &types.AttributeValueMemberS{Value: s.baseURI},
			"version":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", current+1)},
			"checkpoint": &types.AttributeValueMemberS{Value: checkpointName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentCommit
		}
		return fmt.Errorf("blobstore: commit checkpoint: %w", err)
	}
	return nil
}
