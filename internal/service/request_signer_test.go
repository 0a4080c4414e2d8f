package service

import (
	"testing"

	"fx-liquidity-engine/internal/core/ports"

	"github.com/stretchr/testify/assert"
)

func settlementMessage() ports.SignedMessage {
	return ports.SignedMessage{
		Method:    "POST",
		Path:      "/v1/settle",
		Timestamp: 1772406000,
		Nonce:     "9f1c2d",
		Body:      []byte(`{"currency":"EUR","amount":"107.8"}`),
	}
}

func TestHMACRequestSigner_SignAndVerify(t *testing.T) {
	signer := NewHMACRequestSigner()
	msg := settlementMessage()

	sig := signer.Sign("settle-secret", msg)
	assert.Len(t, sig, 64)
	assert.True(t, signer.Verify("settle-secret", msg, sig))
	assert.Equal(t, sig, signer.Sign("settle-secret", msg))
}

func TestHMACRequestSigner_Canonical(t *testing.T) {
	got := string(canonicalMessage(settlementMessage()))
	assert.Equal(t, "POST\n/v1/settle\n1772406000\n9f1c2d\n{\"currency\":\"EUR\",\"amount\":\"107.8\"}", got)

	empty := string(canonicalMessage(ports.SignedMessage{Method: "GET", Path: "/", Timestamp: 1}))
	assert.Equal(t, "GET\n/\n1\n\n", empty)
}

func TestHMACRequestSigner_VerifyRejectsTampering(t *testing.T) {
	signer := NewHMACRequestSigner()
	sig := signer.Sign("settle-secret", settlementMessage())

	tests := []struct {
		name   string
		secret string
		mutate func(m *ports.SignedMessage)
	}{
		{"wrong secret", "other-secret", func(*ports.SignedMessage) {}},
		{"amount changed", "settle-secret", func(m *ports.SignedMessage) {
			m.Body = []byte(`{"currency":"EUR","amount":"1078"}`)
		}},
		{"replayed with new nonce", "settle-secret", func(m *ports.SignedMessage) { m.Nonce = "aaaaaa" }},
		{"stale timestamp", "settle-secret", func(m *ports.SignedMessage) { m.Timestamp-- }},
		{"different path", "settle-secret", func(m *ports.SignedMessage) { m.Path = "/v2/settle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := settlementMessage()
			tt.mutate(&msg)
			assert.False(t, signer.Verify(tt.secret, msg, sig))
		})
	}

	assert.False(t, signer.Verify("settle-secret", settlementMessage(), "deadbeef"))
}
