package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"fx-liquidity-engine/internal/core/ports"
)

const signatureSeparator = '\n'

// HMACRequestSigner implements ports.RequestSigner with HMAC-SHA256 over
// METHOD, PATH, TIMESTAMP, NONCE and BODY joined by newlines.
type HMACRequestSigner struct{}

// NewHMACRequestSigner creates a new HMAC-SHA256 request signer.
func NewHMACRequestSigner() *HMACRequestSigner {
	return &HMACRequestSigner{}
}

// Sign returns the lowercase hex signature of msg.
func (s *HMACRequestSigner) Sign(secret string, msg ports.SignedMessage) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonicalMessage(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time.
func (s *HMACRequestSigner) Verify(secret string, msg ports.SignedMessage, signature string) bool {
	expected := s.Sign(secret, msg)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func canonicalMessage(msg ports.SignedMessage) []byte {
	buf := make([]byte, 0, len(msg.Method)+len(msg.Path)+len(msg.Nonce)+len(msg.Body)+24)
	buf = append(buf, msg.Method...)
	buf = append(buf, signatureSeparator)
	buf = append(buf, msg.Path...)
	buf = append(buf, signatureSeparator)
	buf = strconv.AppendInt(buf, msg.Timestamp, 10)
	buf = append(buf, signatureSeparator)
	buf = append(buf, msg.Nonce...)
	buf = append(buf, signatureSeparator)
	buf = append(buf, msg.Body...)
	return buf
}
