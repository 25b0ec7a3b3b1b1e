package relayice

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// TURNCredentials holds the shared secret for the TURN fleet, stored in
// Secrets Manager rather than passed on the command line.
type TURNCredentials struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

func LoadTURNCredentials(s *session.Session, secretName string) (TURNCredentials, error) {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return TURNCredentials{}, fmt.Errorf("failed to initialize secrets: %w", err)
	}

	var creds TURNCredentials
	if err := manager.Decode(secretName, &creds); err != nil {
		return TURNCredentials{}, fmt.Errorf("failed to load secret %v: %v", secretName, err)
	}
	return creds, nil
}
