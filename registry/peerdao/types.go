package peerdao

import "github.com/synapsed-me/synapsed-relay/registry"

// record is a peer connection as stored in DynamoDB. The ttl attribute is
// the table's TTL attribute; the sweeper enforces expiry regardless of
// whether DynamoDB has reclaimed the item yet.
type record struct {
	DID          string `dynamodbav:"did" ddb:"hash"`
	PeerID       string `dynamodbav:"peerId" ddb:"range"`
	State        string `dynamodbav:"state"`
	ConnectionID string `dynamodbav:"connection_id,omitempty"`
	Endpoint     string `dynamodbav:"endpoint,omitempty"`
	CreatedAt    int64  `dynamodbav:"created_at"`
	UpdatedAt    int64  `dynamodbav:"updated_at"`
	TTL          int64  `dynamodbav:"ttl"`
}

func fromRegistry(r registry.Record) record {
	return record{
		DID:          r.DID,
		PeerID:       r.PeerID,
		State:        r.State,
		ConnectionID: r.ConnectionID,
		Endpoint:     r.Endpoint,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		TTL:          r.ExpiresAt,
	}
}

func (r record) toRegistry() registry.Record {
	return registry.Record{
		DID:          r.DID,
		PeerID:       r.PeerID,
		State:        r.State,
		ConnectionID: r.ConnectionID,
		Endpoint:     r.Endpoint,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		ExpiresAt:    r.TTL,
	}
}
