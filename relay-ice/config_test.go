package relayice

import (
	"testing"

	"github.com/tj/assert"
)

func TestURLValidation(t *testing.T) {
	assert.True(t, IsValidSTUNURL("stun:stun.l.google.com:19302"))
	assert.True(t, IsValidSTUNURL("stun:stun.example.org"))
	assert.False(t, IsValidSTUNURL("stun:"))
	assert.False(t, IsValidSTUNURL("turn:relay.example.org:3478"))
	assert.False(t, IsValidSTUNURL("https://example.org"))

	assert.True(t, IsValidTURNURL("turn:relay.example.org:3478"))
	assert.False(t, IsValidTURNURL("turn:"))
	assert.False(t, IsValidTURNURL("stun:stun.example.org"))
}

func TestCatalog_Defaults(t *testing.T) {
	servers := Catalog(Config{})
	assert.Equal(t, []Server{{URLs: DefaultSTUNServer}}, servers)

	// invalid entries fall back to the default
	servers = Catalog(Config{STUNServers: "https://nope, turn:wrong.example.org"})
	assert.Equal(t, []Server{{URLs: DefaultSTUNServer}}, servers)
}

func TestCatalog(t *testing.T) {
	servers := Catalog(Config{
		STUNServers:    "stun:a.example.org:3478, stun:b.example.org:3478",
		TURNServers:    "turn:relay.example.org:3478",
		TURNUsername:   "u",
		TURNCredential: "c",
	})
	assert.Equal(t, []Server{
		{URLs: "stun:a.example.org:3478"},
		{URLs: "stun:b.example.org:3478"},
		{URLs: "turn:relay.example.org:3478", Username: "u", Credential: "c"},
	}, servers)
}

func TestCatalog_TURNRequiresCredentials(t *testing.T) {
	servers := Catalog(Config{
		STUNServers: "stun:a.example.org:3478",
		TURNServers: "turn:relay.example.org:3478",
	})
	assert.Equal(t, []Server{{URLs: "stun:a.example.org:3478"}}, servers)
}
