package relayrest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	relaycli "github.com/synapsed-me/synapsed-relay/relay-cli"
	relayice "github.com/synapsed-me/synapsed-relay/relay-ice"
	"github.com/synapsed-me/synapsed-relay/registry"
)

// DefaultTTL applies when a connect request omits ttlSeconds.
const DefaultTTL = 60 * time.Second

// PeersHandler maps the /peers endpoints onto registry engine calls. It
// performs no business logic of its own.
type PeersHandler struct {
	Engine     *registry.Engine
	ICEServers []relayice.Server
	Metrics    *relaycli.Metrics
	DefaultTTL time.Duration
}

func (h *PeersHandler) Routes(routes chi.Router) {
	routes.Route("/peers", func(r chi.Router) {
		r.Post("/connect", h.Connect)
		r.Post("/disconnect", h.Disconnect)
		r.Post("/status", h.Status)
		r.Get("/ice-servers", h.ICE)
	})
}

type peerRequest struct {
	DID        string `json:"did"`
	PeerID     string `json:"peerId"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

type peerResponse struct {
	DID          string `json:"did"`
	PeerID       string `json:"peerId"`
	State        string `json:"state"`
	ConnectionID string `json:"connectionId,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *PeersHandler) Connect(w http.ResponseWriter, req *http.Request) {
	body, ok := h.decode(w, req)
	if !ok {
		return
	}

	ttl := h.defaultTTL()
	if body.TTLSeconds != 0 {
		// non-positive values reach the engine and are rejected there
		ttl = time.Duration(body.TTLSeconds) * time.Second
	}

	record, err := h.Engine.Connect(req.Context(), registry.ConnectRequest{
		DID:      body.DID,
		PeerID:   body.PeerID,
		TTL:      ttl,
		Endpoint: clientEndpoint(req),
	})
	if err != nil {
		h.writeError(w, req, "connect", err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.Event(req.Context(), relaycli.PeerConnectMetric)
	}
	writeJSON(w, http.StatusOK, peerResponse{
		DID:          record.DID,
		PeerID:       record.PeerID,
		State:        record.State,
		ConnectionID: record.ConnectionID,
		ExpiresAt:    record.ExpiresAt,
	})
}

func (h *PeersHandler) Disconnect(w http.ResponseWriter, req *http.Request) {
	body, ok := h.decode(w, req)
	if !ok {
		return
	}

	record, err := h.Engine.Disconnect(req.Context(), body.DID, body.PeerID)
	if err != nil {
		h.writeError(w, req, "disconnect", err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.Event(req.Context(), relaycli.PeerDisconnectMetric)
	}
	writeJSON(w, http.StatusOK, peerResponse{
		DID:    record.DID,
		PeerID: record.PeerID,
		State:  registry.StateDisconnected,
	})
}

func (h *PeersHandler) Status(w http.ResponseWriter, req *http.Request) {
	body, ok := h.decode(w, req)
	if !ok {
		return
	}

	record, err := h.Engine.Status(req.Context(), body.DID, body.PeerID)
	if err != nil {
		h.writeError(w, req, "status", err)
		return
	}

	resp := peerResponse{
		DID:    record.DID,
		PeerID: record.PeerID,
		State:  record.State,
	}
	if record.Live() {
		resp.ConnectionID = record.ConnectionID
		resp.ExpiresAt = record.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// ICE returns the STUN/TURN server catalog clients use to negotiate their
// direct sessions. Configuration metadata only; no SDP or candidates pass
// through this service.
func (h *PeersHandler) ICE(w http.ResponseWriter, req *http.Request) {
	servers := h.ICEServers
	if servers == nil {
		servers = []relayice.Server{}
	}
	writeJSON(w, http.StatusOK, struct {
		ICEServers []relayice.Server `json:"iceServers"`
	}{ICEServers: servers})
}

func (h *PeersHandler) decode(w http.ResponseWriter, req *http.Request) (peerRequest, bool) {
	var body peerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return peerRequest{}, false
	}
	return body, true
}

func (h *PeersHandler) writeError(w http.ResponseWriter, req *http.Request, op string, err error) {
	logger := zerolog.Ctx(req.Context())

	switch {
	case errors.Is(err, registry.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, registry.ErrContention):
		if h.Metrics != nil {
			h.Metrics.Event(req.Context(), relaycli.ContentionMetric)
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})

	default:
		logger.Error().Err(err).Str("op", op).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable, retry with backoff"})
	}
}

func (h *PeersHandler) defaultTTL() time.Duration {
	if h.DefaultTTL > 0 {
		return h.DefaultTTL
	}
	return DefaultTTL
}

func clientEndpoint(req *http.Request) string {
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	return req.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
