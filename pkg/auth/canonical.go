package auth

import (
	"strings"
	"time"
)

const (
	HeaderAuthorization   = "Authorization"
	HeaderCreatedAt       = "created-at"
	HeaderExpiry          = "expiry"
	HeaderFirmwareVersion = "x-firmware-version"
	HeaderSignature       = "signature"

	Scheme = "Hmac"
)

// CanonicalRequest builds the signed message of a request. The field order is
// part of the wire protocol: method, path, version (only when present),
// created-at and expiry, joined by single newlines.
func CanonicalRequest(method, path, version, createdAt, expiry string) []byte {
	parts := make([]string, 0, 5)
	parts = append(parts, strings.ToLower(method), path)
	if version != "" {
		parts = append(parts, version)
	}
	parts = append(parts, createdAt, expiry)
	return []byte(strings.Join(parts, "\n"))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps with or without fractional seconds.
// Timestamps without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		t, err = time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
