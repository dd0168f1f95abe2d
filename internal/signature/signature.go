package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Signer computes and verifies keyed signatures over canonical payload
// bytes plus a millisecond timestamp. Every hand-off to the model server
// carries one; callbacks are expected to carry one back. The secret is
// process-wide, read-only configuration shared with the model server.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer. An empty secret is a configuration error and
// must be treated as fatal at startup, not per request.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signature: shared secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign canonicalizes payload, appends the decimal timestamp and returns
// the hex-encoded HMAC-SHA256 digest.
func (s *Signer) Sign(payload interface{}, timestamp int64) (string, error) {
	canonical, err := canonicalBytes(payload)
	if err != nil {
		return "", fmt.Errorf("signature: canonicalize payload: %w", err)
	}
	return s.signBytes(canonical, timestamp), nil
}

// Verify recomputes the signature for payload and timestamp and compares
// it against sig in constant time.
func (s *Signer) Verify(payload interface{}, timestamp int64, sig string) bool {
	canonical, err := canonicalBytes(payload)
	if err != nil {
		return false
	}
	return s.verifyBytes(canonical, timestamp, sig)
}

// VerifyRaw verifies a signature over a raw request body. Used on the
// callback path, where the exact bytes on the wire are what was signed.
func (s *Signer) VerifyRaw(body []byte, timestamp int64, sig string) bool {
	canonical, err := canonicalBytes(json.RawMessage(body))
	if err != nil {
		return false
	}
	return s.verifyBytes(canonical, timestamp, sig)
}

func (s *Signer) signBytes(canonical []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) verifyBytes(canonical []byte, timestamp int64, sig string) bool {
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hmac.Equal(mac.Sum(nil), expected)
}

// Fresh reports whether a millisecond timestamp falls within window of
// now. Bounds replay exposure on signed requests.
func Fresh(timestamp int64, window time.Duration, now time.Time) bool {
	ts := time.UnixMilli(timestamp)
	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	return age <= window
}

// canonicalBytes produces a deterministic byte representation of v:
// marshal, decode into generic values and re-marshal so object keys come
// out sorted regardless of struct field order or sender formatting.
func canonicalBytes(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
