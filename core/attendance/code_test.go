package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWindow = 2 * time.Second
	testSess   = Session{
		ID:   "0b8f1c8e-2b4c-4c43-9d55-6f1c1e0b7a11",
		Salt: []byte("0123456789abcdef0123456789abcdef"),
	}
)

func TestGenerateCode(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 500_000_000, time.UTC)
	code := GenerateCode(testSess, now, testWindow)

	assert.Equal(t, Bucket(now, testWindow), code.Bucket)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 54, 0, time.UTC), code.ExpiresAt)
	assert.Equal(t, 2.0, code.WindowSeconds)
	assert.True(t, strings.HasPrefix(code.Payload, "RC1."+testSess.ID+"."))

	t.Run("stable within a bucket", func(t *testing.T) {
		same := GenerateCode(testSess, now.Add(400*time.Millisecond), testWindow)
		assert.Equal(t, code.Payload, same.Payload)
	})

	t.Run("rotates with the bucket", func(t *testing.T) {
		next := GenerateCode(testSess, now.Add(testWindow), testWindow)
		assert.NotEqual(t, code.Payload, next.Payload)
		assert.Equal(t, code.Bucket+1, next.Bucket)
	})

	t.Run("depends on the salt", func(t *testing.T) {
		other := testSess
		other.Salt = []byte("another salt")
		assert.NotEqual(t, code.Payload, GenerateCode(other, now, testWindow).Payload)
	})
}

func TestParsePayload(t *testing.T) {
	code := GenerateCode(testSess, time.Now(), testWindow)

	p, err := ParsePayload("  " + code.Payload + "\n")
	require.NoError(t, err)
	assert.Equal(t, testSess.ID, p.SessionID)
	assert.Equal(t, code.Bucket, p.Bucket)
	assert.Len(t, p.Signature, signatureLen)
	assert.Equal(t, code.Payload, p.String())

	sig := p.Signature
	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "ticket code", payload: "RC-ABCD-EFGH"},
		{name: "wrong version", payload: "RC2." + testSess.ID + ".abc." + sig},
		{name: "missing part", payload: "RC1." + testSess.ID + "." + sig},
		{name: "extra part", payload: "RC1." + testSess.ID + ".abc." + sig + ".x"},
		{name: "bad session", payload: "RC1.not-a-uuid.abc." + sig},
		{name: "bad bucket", payload: "RC1." + testSess.ID + ".ab$." + sig},
		{name: "negative bucket", payload: "RC1." + testSess.ID + ".-abc." + sig},
		{name: "short signature", payload: "RC1." + testSess.ID + ".abc." + sig[:8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.payload)
			assert.Equal(t, ErrCodeMalformed, err)
		})
	}
}

func TestVerifyCode(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	at := func(offset time.Duration) Payload {
		p, err := ParsePayload(GenerateCode(testSess, now.Add(offset), testWindow).Payload)
		require.NoError(t, err)
		return p
	}

	tampered := at(0)
	tampered.Bucket++

	forged := at(0)
	forged.Signature = strings.Repeat("A", signatureLen)

	tests := []struct {
		name    string
		payload Payload
		skew    int
		wantErr error
	}{
		{name: "current", payload: at(0), skew: 1},
		{name: "previous bucket within skew", payload: at(-testWindow), skew: 1},
		{name: "next bucket within skew", payload: at(testWindow), skew: 1},
		{name: "too old", payload: at(-2 * testWindow), skew: 1, wantErr: ErrCodeExpired},
		{name: "too far ahead", payload: at(2 * testWindow), skew: 1, wantErr: ErrCodeInvalid},
		{name: "no skew", payload: at(-testWindow), skew: 0, wantErr: ErrCodeExpired},
		{name: "tampered bucket", payload: tampered, skew: 1, wantErr: ErrCodeInvalid},
		{name: "forged signature", payload: forged, skew: 1, wantErr: ErrCodeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyCode(testSess.Salt, tt.payload, now, testWindow, tt.skew)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	t.Run("other salt", func(t *testing.T) {
		err := VerifyCode([]byte("not the salt"), at(0), now, testWindow, 1)
		assert.Equal(t, ErrCodeInvalid, err)
	})
}

func TestReplayTTL(t *testing.T) {
	// a code of bucket b is accepted until the end of bucket b+skew
	assert.Equal(t, 8*time.Second, replayTTL(2*time.Second, 1))
	assert.Equal(t, 4*time.Second, replayTTL(2*time.Second, 0))
}
