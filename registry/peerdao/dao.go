package peerdao

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"

	"github.com/synapsed-me/synapsed-relay/registry"
)

// DAO provides access to the peer connections table. The savaki/ddb table
// handles plain lookups; conditional writes and the expiry scan drop to the
// raw DynamoDB API for condition and filter expressions.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new peer connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, record{}),
		api:       api,
		tableName: tableName,
	}
}

// Get retrieves the connection record for a (did, peerId) key.
func (d *DAO) Get(ctx context.Context, did, peerID string) (registry.Record, error) {
	var rec record
	get := d.table.Get(did).Range(peerID).ConsistentRead(true)
	if err := get.ScanWithContext(ctx, &rec); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return registry.Record{}, fmt.Errorf("connection %v/%v: %w", did, peerID, registry.ErrNotFound)
		}
		return registry.Record{}, d.wrapErr("get", did, peerID, err)
	}
	return rec.toRegistry(), nil
}

// PutIfAbsentOrOwned writes the record fenced on the key's current state:
// absent-or-tombstoned when expectedUpdatedAt is zero, or a live record
// carrying the expected token (owner refresh).
func (d *DAO) PutIfAbsentOrOwned(ctx context.Context, rec registry.Record, expectedUpdatedAt int64) error {
	item, err := dynamodbattribute.MarshalMap(fromRegistry(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal record %v/%v: %w", rec.DID, rec.PeerID, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}
	if expectedUpdatedAt == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(did) OR #state = :disconnected")
		input.ExpressionAttributeNames = map[string]*string{"#state": aws.String("state")}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":disconnected": {S: aws.String(registry.StateDisconnected)},
		}
	} else {
		input.ConditionExpression = aws.String("#state = :connected AND updated_at = :expected")
		input.ExpressionAttributeNames = map[string]*string{"#state": aws.String("state")}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":connected": {S: aws.String(registry.StateConnected)},
			":expected":  {N: aws.String(strconv.FormatInt(expectedUpdatedAt, 10))},
		}
	}

	if _, err := d.api.PutItemWithContext(ctx, input); err != nil {
		return d.wrapErr("put", rec.DID, rec.PeerID, err)
	}
	return nil
}

// MarkDisconnected transitions the record to its tombstone form, fenced on
// the expected updated_at token.
func (d *DAO) MarkDisconnected(ctx context.Context, tombstone registry.Record, expectedUpdatedAt int64) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"did":    {S: aws.String(tombstone.DID)},
			"peerId": {S: aws.String(tombstone.PeerID)},
		},
		ConditionExpression: aws.String("attribute_exists(did) AND updated_at = :expected"),
		UpdateExpression:    aws.String("SET #state = :state, updated_at = :updated, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]*string{
			"#state": aws.String("state"),
			"#ttl":   aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":state":    {S: aws.String(registry.StateDisconnected)},
			":updated":  {N: aws.String(strconv.FormatInt(tombstone.UpdatedAt, 10))},
			":ttl":      {N: aws.String(strconv.FormatInt(tombstone.ExpiresAt, 10))},
			":expected": {N: aws.String(strconv.FormatInt(expectedUpdatedAt, 10))},
		},
	}

	if _, err := d.api.UpdateItemWithContext(ctx, input); err != nil {
		wrapped := d.wrapErr("mark disconnected", tombstone.DID, tombstone.PeerID, err)
		if !errors.Is(wrapped, registry.ErrConflict) {
			return wrapped
		}
		// condition failure covers both a moved token and a vanished item;
		// disambiguate with a read
		if _, getErr := d.Get(ctx, tombstone.DID, tombstone.PeerID); errors.Is(getErr, registry.ErrNotFound) {
			return getErr
		}
		return wrapped
	}
	return nil
}

// ScanExpired returns the keys of all records whose ttl attribute is at or
// before now. Used only by the sweeper.
func (d *DAO) ScanExpired(ctx context.Context, now time.Time) ([]registry.Key, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		FilterExpression:         aws.String("#ttl <= :now"),
		ProjectionExpression:     aws.String("did, peerId"),
		ExpressionAttributeNames: map[string]*string{"#ttl": aws.String("ttl")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(strconv.FormatInt(now.Unix(), 10))},
		},
	}

	var keys []registry.Key
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			var key struct {
				DID    string `dynamodbav:"did"`
				PeerID string `dynamodbav:"peerId"`
			}
			if err := dynamodbattribute.UnmarshalMap(item, &key); err != nil {
				continue
			}
			keys = append(keys, registry.Key{DID: key.DID, PeerID: key.PeerID})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired records: %v: %w", err, registry.ErrUnavailable)
	}
	return keys, nil
}

// DeleteIfDisconnected physically removes a tombstoned record.
func (d *DAO) DeleteIfDisconnected(ctx context.Context, did, peerID string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"did":    {S: aws.String(did)},
			"peerId": {S: aws.String(peerID)},
		},
		ConditionExpression:      aws.String("attribute_exists(did) AND #state = :disconnected"),
		ExpressionAttributeNames: map[string]*string{"#state": aws.String("state")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":disconnected": {S: aws.String(registry.StateDisconnected)},
		},
	}

	if _, err := d.api.DeleteItemWithContext(ctx, input); err != nil {
		wrapped := d.wrapErr("delete", did, peerID, err)
		if errors.Is(wrapped, registry.ErrConflict) {
			// absent or no longer a tombstone; either way there is nothing
			// for the sweeper to remove
			return fmt.Errorf("connection %v/%v: no tombstone: %w", did, peerID, registry.ErrNotFound)
		}
		return wrapped
	}
	return nil
}

// wrapErr maps DynamoDB failures onto the store error taxonomy: conditional
// check failures become ErrConflict, everything else reads as the store
// being unavailable.
func (d *DAO) wrapErr(op, did, peerID string, err error) error {
	if ae, ok := err.(awserr.Error); ok && ae.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
		return fmt.Errorf("%v %v/%v: %w", op, did, peerID, registry.ErrConflict)
	}
	return fmt.Errorf("%v %v/%v: %v: %w", op, did, peerID, err, registry.ErrUnavailable)
}
