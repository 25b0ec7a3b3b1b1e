package relayddb

import (
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/synapsed-me/synapsed-relay/registry"
	"github.com/synapsed-me/synapsed-relay/registry/memdao"
	"github.com/synapsed-me/synapsed-relay/registry/peerdao"
)

// BuildStore constructs the connection record store from the parsed flags:
// in-memory when requested, otherwise DynamoDB with the standard table name
// for the environment unless overridden.
func BuildStore(s *session.Session, env string) (registry.Store, error) {
	if DDBOpts.InMemory {
		return memdao.New(), nil
	}

	api, err := DynamoDBAPI(s)
	if err != nil {
		return nil, err
	}
	if DDBOpts.TableName != "" {
		return peerdao.New(api, DDBOpts.TableName), nil
	}
	return peerdao.Build(api, env), nil
}
