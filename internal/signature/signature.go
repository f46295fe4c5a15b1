// Package signature implements the webhook request signing scheme.
//
// Outbound requests carry a header of the form:
//
//	t=<unix-seconds>,v1=<hex HMAC-SHA256 of "<t>.<body>">
//
// Receivers recompute the HMAC over the embedded timestamp and the raw body
// and compare in constant time. Signatures older (or newer) than the
// tolerance window are rejected to prevent replay.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Version is the signature scheme version identifier.
	Version = "v1"

	// DefaultTolerance is the maximum allowed clock skew between the
	// timestamp embedded in a signature and the verifier's clock.
	DefaultTolerance = 300 * time.Second
)

// Signer signs webhook bodies with a shared secret.
type Signer struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithTolerance overrides the replay-protection window.
func WithTolerance(d time.Duration) Option {
	return func(s *Signer) { s.tolerance = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New creates a Signer for the given shared secret.
func New(secret string, opts ...Option) *Signer {
	s := &Signer{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign computes the signature header value for body.
func (s *Signer) Sign(body []byte) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	return fmt.Sprintf("t=%s,%s=%s", ts, Version, computeHMAC(s.secret, ts, body))
}

// Verify checks a signature header against body. It returns false if the
// signature does not match or the embedded timestamp falls outside the
// tolerance window.
func (s *Signer) Verify(sig string, body []byte) bool {
	ts, mac, err := parse(sig)
	if err != nil {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	skew := s.now().Unix() - unix
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(s.tolerance.Seconds()) {
		return false
	}

	want := computeHMAC(s.secret, ts, body)
	return hmac.Equal([]byte(mac), []byte(want))
}

// Verify is a standalone helper for receivers that hold their own secret.
func Verify(sig string, body []byte, secret string) bool {
	return New(secret).Verify(sig, body)
}

func computeHMAC(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// parse splits "t=<ts>,v1=<hex>" into its parts.
func parse(sig string) (ts, mac string, err error) {
	for _, part := range strings.Split(sig, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", fmt.Errorf("malformed signature element %q", part)
		}
		switch k {
		case "t":
			ts = v
		case Version:
			mac = v
		}
	}
	if ts == "" || mac == "" {
		return "", "", fmt.Errorf("signature missing t or %s element", Version)
	}
	return ts, mac, nil
}
