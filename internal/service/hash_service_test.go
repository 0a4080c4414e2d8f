package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap costs keep the suite fast; encoding and comparison are unchanged
var testArgon2Params = Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1}

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(testArgon2Params)

	hash, err := svc.Hash("0perator-Pass!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	ok, err := svc.Verify("0perator-Pass!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("0perator-pass!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2HashService_SaltedPerHash(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(testArgon2Params)

	h1, err := svc.Hash("same")
	require.NoError(t, err)
	h2, err := svc.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestArgon2HashService_DefaultsFillZeroParams(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(Argon2Params{Time: 1})

	assert.Equal(t, uint32(1), svc.params.Time)
	assert.Equal(t, DefaultArgon2Params.MemoryKiB, svc.params.MemoryKiB)
	assert.Equal(t, DefaultArgon2Params.Threads, svc.params.Threads)
	assert.Equal(t, DefaultArgon2Params.KeyLen, svc.params.KeyLen)
	assert.Equal(t, DefaultArgon2Params.SaltLen, svc.params.SaltLen)
}

func TestArgon2HashService_VerifiesWithEncodedParams(t *testing.T) {
	weak := NewArgon2HashServiceWithParams(testArgon2Params)
	hash, err := weak.Hash("rotate-me")
	require.NoError(t, err)

	// a service configured with different costs still checks older hashes
	strong := NewArgon2HashServiceWithParams(Argon2Params{Time: 2, MemoryKiB: 16 * 1024, Threads: 2})
	ok, err := strong.Verify("rotate-me", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2HashService_VerifyMalformed(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(testArgon2Params)

	tests := []struct {
		name    string
		encoded string
		wantErr string
	}{
		{"not a hash", "plaintext", "malformed"},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv$wxyz", "malformed"},
		{"argon2i", "$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5", "unsupported algorithm"},
		{"old version", "$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5", "unsupported argon2 version"},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHQ$a2V5", "params"},
		{"bad salt", "$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5", "salt"},
		{"empty key", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$", "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.Verify("anything", tt.encoded)
			assert.False(t, ok)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
