package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// VoiceRelay is the contract for the voice collaborator: an SFU plus
// signaling relay living outside this server. Payloads are opaque; this
// server only gates access (room membership, voiceEnabled) and forwards.
type VoiceRelay interface {
	Join(ctx context.Context, roomCode, userID string) (json.RawMessage, error)
	CreateTransport(ctx context.Context, roomCode, userID string, payload json.RawMessage) (json.RawMessage, error)
	Produce(ctx context.Context, roomCode, userID string, payload json.RawMessage) (json.RawMessage, error)
	Consume(ctx context.Context, roomCode, userID string, payload json.RawMessage) (json.RawMessage, error)
}

// NoopVoiceRelay logs and drops voice signaling, for deployments without
// the SFU.
type NoopVoiceRelay struct{}

func (NoopVoiceRelay) Join(_ context.Context, roomCode, userID string) (json.RawMessage, error) {
	log.Debug().Str("code", roomCode).Str("userId", userID).Msg("Voice join ignored: no relay configured")
	return json.RawMessage(`{}`), nil
}

func (NoopVoiceRelay) CreateTransport(_ context.Context, roomCode, userID string, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (NoopVoiceRelay) Produce(_ context.Context, roomCode, userID string, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (NoopVoiceRelay) Consume(_ context.Context, roomCode, userID string, _ json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
