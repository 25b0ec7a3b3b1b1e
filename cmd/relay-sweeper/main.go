package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
	relayddb "github.com/synapsed-me/synapsed-relay/relay-ddb"
	relaysweeper "github.com/synapsed-me/synapsed-relay/relay-sweeper"
)

var service = relaycli.NewService("relay-sweeper")

func main() {
	app := relaycli.App(
		service,
		action,
		append(
			append(relaycli.CommonFlags, &relaycli.SweepIntervalFlag),
			relayddb.DDBFlags...,
		)...,
	)
	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func action(_ *cli.Context) error {
	s := session.Must(session.NewSession())

	store, err := relayddb.BuildStore(s, relaycli.CommonOpts.Env)
	if err != nil {
		return fmt.Errorf("failed to build record store: %w", err)
	}

	handler := relaysweeper.NewHandler(service, store, relaycli.CommonOpts.SweepInterval)
	if !relaycli.CommonOpts.Console {
		metrics := relaycli.NewMetrics(service, cloudwatch.New(s))
		handler.Metrics = &metrics
	}

	return handler.Start()
}
