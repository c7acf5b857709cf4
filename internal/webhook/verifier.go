// Package webhook authenticates and decodes payment provider deliveries.
//
// Yoco signs webhooks following the Standard Webhooks convention and this
// package implements exactly that one scheme:
//
//	signed content  = webhook-id + "." + webhook-timestamp + "." + raw body
//	key             = base64 decode of the secret after the "whsec_" prefix
//	signature       = base64(HMAC-SHA256(key, signed content))
//	webhook-signature header = space separated "v1,<signature>" entries
//
// The signature is always computed over the raw request bytes.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	secretPrefix     = "whsec_"
	signatureVersion = "v1"
)

var (
	ErrMissingSecret    = errors.New("webhook: signing secret is not configured")
	ErrMissingHeaders   = errors.New("webhook: signature headers are required")
	ErrInvalidTimestamp = errors.New("webhook: invalid timestamp")
	ErrExpiredTimestamp = errors.New("webhook: timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook: signature verification failed")
)

// Headers carries the three signature headers of one delivery.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// HeadersFrom reads the signature headers from an HTTP header set.
func HeadersFrom(h http.Header) Headers {
	return Headers{
		ID:        strings.TrimSpace(h.Get(HeaderID)),
		Timestamp: strings.TrimSpace(h.Get(HeaderTimestamp)),
		Signature: strings.TrimSpace(h.Get(HeaderSignature)),
	}
}

// Verifier checks delivery signatures against one pre-shared secret.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes secret and returns a Verifier.  tolerance bounds the
// accepted distance between the delivery timestamp and the local clock; a
// non-positive tolerance disables the check.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if !strings.HasPrefix(secret, secretPrefix) {
		return nil, fmt.Errorf("webhook: secret must start with %q", secretPrefix)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook: decode secret: %w", err)
	}
	if len(key) == 0 {
		return nil, ErrMissingSecret
	}
	return key, nil
}

// Verify returns nil only when one of the v1 signatures in h matches the
// HMAC of body.  Every other outcome is an error.
func (v *Verifier) Verify(h Headers, body []byte) error {
	if v == nil || len(v.key) == 0 {
		return ErrMissingSecret
	}
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return ErrMissingHeaders
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if v.tolerance > 0 {
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return ErrExpiredTimestamp
		}
	}

	expected := v.mac(h.ID, h.Timestamp, body)
	matched := false
	for _, entry := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		// every entry is compared so the loop does not exit on the first match
		if hmac.Equal(decoded, expected) {
			matched = true
		}
	}
	if !matched {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the webhook-signature header value for a delivery.  The
// server never signs outbound traffic; tests and local tooling use it to
// produce deliveries the Verifier accepts.
func (v *Verifier) Sign(id, timestamp string, body []byte) string {
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(v.mac(id, timestamp, body))
}

func (v *Verifier) mac(id, timestamp string, body []byte) []byte {
	m := hmac.New(sha256.New, v.key)
	m.Write([]byte(id))
	m.Write([]byte{'.'})
	m.Write([]byte(timestamp))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}
