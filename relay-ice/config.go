// Package relayice assembles the ICE server catalog handed to peers for
// their direct session negotiation. The catalog is configuration metadata
// only; the registry never relays SDP or candidates.
package relayice

import "strings"

// DefaultSTUNServer is used when no valid STUN server is configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// Server is one entry of the catalog, in the shape of a WebRTC
// RTCIceServer.
type Server struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// Config carries the raw server lists and TURN credentials. Lists are
// comma-separated; invalid entries are dropped.
type Config struct {
	STUNServers    string
	TURNServers    string
	TURNUsername   string
	TURNCredential string
}

// Catalog builds the ICE server list. There is always at least one STUN
// entry; TURN entries are included only when both credentials are present.
func Catalog(config Config) []Server {
	var servers []Server
	for _, url := range splitList(config.STUNServers) {
		if IsValidSTUNURL(url) {
			servers = append(servers, Server{URLs: url})
		}
	}
	if len(servers) == 0 {
		servers = append(servers, Server{URLs: DefaultSTUNServer})
	}

	if config.TURNUsername != "" && config.TURNCredential != "" {
		for _, url := range splitList(config.TURNServers) {
			if IsValidTURNURL(url) {
				servers = append(servers, Server{
					URLs:       url,
					Username:   config.TURNUsername,
					Credential: config.TURNCredential,
				})
			}
		}
	}
	return servers
}

func IsValidSTUNURL(url string) bool {
	return strings.HasPrefix(url, "stun:") && len(url) > len("stun:")
}

func IsValidTURNURL(url string) bool {
	return strings.HasPrefix(url, "turn:") && len(url) > len("turn:")
}

func splitList(list string) []string {
	var out []string
	for _, entry := range strings.Split(list, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
