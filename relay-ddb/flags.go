package relayddb

import (
	"github.com/urfave/cli/v2"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
)

var DDBOpts struct {
	DAXCluster string
	TableName  string
	InMemory   bool
}

var DAXClusterFlag = relaycli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var TableNameFlag = relaycli.StringFlag("table-name", "The peer connections table name, overriding the environment default", &DDBOpts.TableName)
var InMemoryFlag = relaycli.BoolFlag("in-memory", "Use the in-memory record store instead of DynamoDB (console mode only)", &DDBOpts.InMemory)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	TableNameFlag,
	InMemoryFlag,
}
