// Package relayrest exposes the peer connection registry over HTTP, with
// CORS support and common middleware.
package relayrest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
)

func Middlewares(service relaycli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(relaycli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(service relaycli.Service, routes chi.Router) error {
	logger := relaycli.Logger(service)

	if relaycli.CommonOpts.Console {
		logger.Info().Int("port", relaycli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", relaycli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, relaycli.CommonOpts.Env))
	return nil
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-DID"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
