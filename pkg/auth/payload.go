package auth

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// SignatureValidity is the lifetime of a signed response.
const SignatureValidity = 15 * time.Minute

// TimestampLayout is used for the created-at and expiry response headers.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// PayloadMessage is body, created-at and expiry joined by newlines.
func PayloadMessage(body []byte, createdAt, expiry string) []byte {
	var b bytes.Buffer
	b.Grow(len(body) + len(createdAt) + len(expiry) + 2)
	b.Write(body)
	b.WriteByte('\n')
	b.WriteString(createdAt)
	b.WriteByte('\n')
	b.WriteString(expiry)
	return b.Bytes()
}

// SignPayload sets the created-at, expiry and signature headers for body.
// It must be called with the complete body and before any of it is written.
func SignPayload(h http.Header, body []byte, secret string, now time.Time) {
	createdAt := now.UTC().Format(TimestampLayout)
	expiry := now.UTC().Add(SignatureValidity).Format(TimestampLayout)
	h.Set(HeaderCreatedAt, createdAt)
	h.Set(HeaderExpiry, expiry)
	h.Set(HeaderSignature, Sign(PayloadMessage(body, createdAt, expiry), secret))
}

// VerifyPayload checks a signed response the way a device does.
func VerifyPayload(h http.Header, body []byte, secret string, now time.Time) error {
	createdAt, expiry, signature := h.Get(HeaderCreatedAt), h.Get(HeaderExpiry), h.Get(HeaderSignature)
	if createdAt == "" || expiry == "" || signature == "" {
		return ErrMissingHeaders
	}
	expiresAt, err := ParseTimestamp(expiry)
	if err != nil {
		return fmt.Errorf("%w: expiry: %v", ErrInvalidTimestamp, err)
	}
	if expiresAt.Before(now) {
		return ErrExpired
	}
	if !Verify(PayloadMessage(body, createdAt, expiry), secret, signature) {
		return ErrSignatureMismatch
	}
	return nil
}
