package attendance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	payloadVersion = "RC1"
	signatureLen   = 16
)

// Code is the content of the QR code shown by an attendee, valid for one time bucket.
type Code struct {
	Payload       string    `json:"payload"`
	Bucket        int64     `json:"bucket"`
	ExpiresAt     time.Time `json:"expires_at"`
	WindowSeconds float64   `json:"window_seconds"`
}

// Payload is a parsed QR payload: RC1.<session ID>.<bucket in base36>.<signature>
type Payload struct {
	SessionID string
	Bucket    int64
	Signature string
}

func (p Payload) String() string {
	return strings.Join([]string{payloadVersion, p.SessionID, strconv.FormatInt(p.Bucket, 36), p.Signature}, ".")
}

// ReplayKey identifies a code for the ReplayGuard.
func (p Payload) ReplayKey() string {
	return p.SessionID + ":" + strconv.FormatInt(p.Bucket, 10)
}

// Bucket numbers the time window `t` falls in.
func Bucket(t time.Time, window time.Duration) int64 {
	return t.UnixNano() / int64(window)
}

// BucketEnd is the instant bucket `b` ends.
func BucketEnd(b int64, window time.Duration) time.Time {
	return time.Unix(0, (b+1)*int64(window)).UTC()
}

// Sign computes the signature of a session's code for `bucket`, keyed with the session salt.
func Sign(salt []byte, sessionID string, bucket int64) string {
	h := hmac.New(sha256.New, salt)
	h.Write([]byte(sessionID))
	h.Write([]byte{'.'})
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:signatureLen]
}

// GenerateCode returns the code of `sess` at `now`.
func GenerateCode(sess Session, now time.Time, window time.Duration) Code {
	b := Bucket(now, window)
	p := Payload{SessionID: sess.ID, Bucket: b, Signature: Sign(sess.Salt, sess.ID, b)}
	return Code{
		Payload:       p.String(),
		Bucket:        b,
		ExpiresAt:     BucketEnd(b, window),
		WindowSeconds: window.Seconds(),
	}
}

// ParsePayload parses a scanned QR payload; any malformation yields ErrCodeMalformed.
func ParsePayload(s string) (Payload, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 || parts[0] != payloadVersion {
		return Payload{}, ErrCodeMalformed
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return Payload{}, ErrCodeMalformed
	}
	b, err := strconv.ParseInt(parts[2], 36, 64)
	if err != nil || b < 0 {
		return Payload{}, ErrCodeMalformed
	}
	if len(parts[3]) != signatureLen {
		return Payload{}, ErrCodeMalformed
	}
	return Payload{SessionID: parts[1], Bucket: b, Signature: parts[3]}, nil
}

// VerifyCode checks the signature of `p` and that its bucket is within `skew` buckets of now.
func VerifyCode(salt []byte, p Payload, now time.Time, window time.Duration, skew int) error {
	if !hmac.Equal([]byte(Sign(salt, p.SessionID, p.Bucket)), []byte(p.Signature)) {
		return ErrCodeInvalid
	}
	cur := Bucket(now, window)
	switch {
	case p.Bucket < cur-int64(skew):
		return ErrCodeExpired
	case p.Bucket > cur+int64(skew):
		return ErrCodeInvalid
	}
	return nil
}

// replayTTL is how long a claimed code must be remembered: past that, VerifyCode rejects it anyway.
func replayTTL(window time.Duration, skew int) time.Duration {
	return window * time.Duration(2*skew+2)
}
