package relayice

import (
	"github.com/urfave/cli/v2"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
)

var ICEOpts struct {
	STUNServers    string
	TURNServers    string
	TURNUsername   string
	TURNCredential string
	TURNSecretName string
}

var STUNServerFlag = relaycli.StringFlag("stun-server", "Comma-separated STUN server urls", &ICEOpts.STUNServers, DefaultSTUNServer)
var TURNServerFlag = relaycli.StringFlag("turn-server", "Comma-separated TURN server urls", &ICEOpts.TURNServers)
var TURNUsernameFlag = relaycli.StringFlag("turn-username", "TURN username, when not loaded from Secrets Manager", &ICEOpts.TURNUsername)
var TURNCredentialFlag = relaycli.StringFlag("turn-credential", "TURN credential, when not loaded from Secrets Manager", &ICEOpts.TURNCredential)
var TURNSecretNameFlag = relaycli.StringFlag("turn-secret-name", "Secrets Manager secret holding the TURN credentials", &ICEOpts.TURNSecretName)

var ICEFlags = []cli.Flag{
	STUNServerFlag,
	TURNServerFlag,
	TURNUsernameFlag,
	TURNCredentialFlag,
	TURNSecretNameFlag,
}
