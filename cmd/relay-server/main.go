package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
	relayddb "github.com/synapsed-me/synapsed-relay/relay-ddb"
	relayice "github.com/synapsed-me/synapsed-relay/relay-ice"
	relayrest "github.com/synapsed-me/synapsed-relay/relay-rest"
	"github.com/synapsed-me/synapsed-relay/registry"
)

var service = relaycli.NewService("relay-server")

func main() {
	app := relaycli.App(
		service,
		action,
		append(
			append(
				append(relaycli.CommonFlags, relaycli.PortFlag(5080)),
				relayddb.DDBFlags...,
			),
			relayice.ICEFlags...,
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

	servers, err := iceServers(s)
	if err != nil {
		return err
	}

	handler := &relayrest.PeersHandler{
		Engine:     registry.NewEngine(store),
		ICEServers: servers,
		DefaultTTL: relaycli.CommonOpts.DefaultTTL,
	}
	if !relaycli.CommonOpts.Console {
		metrics := relaycli.NewMetrics(service, cloudwatch.New(s))
		handler.Metrics = &metrics
	}

	routes := chi.NewRouter()
	relayrest.Middlewares(service, routes)
	handler.Routes(routes)

	return relayrest.Webserver(service, routes)
}

func iceServers(s *session.Session) ([]relayice.Server, error) {
	config := relayice.Config{
		STUNServers:    relayice.ICEOpts.STUNServers,
		TURNServers:    relayice.ICEOpts.TURNServers,
		TURNUsername:   relayice.ICEOpts.TURNUsername,
		TURNCredential: relayice.ICEOpts.TURNCredential,
	}
	if name := relayice.ICEOpts.TURNSecretName; name != "" {
		creds, err := relayice.LoadTURNCredentials(s, name)
		if err != nil {
			return nil, err
		}
		config.TURNUsername = creds.Username
		config.TURNCredential = creds.Credential
	}
	return relayice.Catalog(config), nil
}
