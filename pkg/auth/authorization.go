package auth

import (
	"fmt"
	"strings"
)

const (
	paramKeyID     = "key-id"
	paramSignature = "signature"
)

// Authorization is the parsed value of an Hmac Authorization header.
type Authorization struct {
	KeyID     string
	Signature string
}

// ParseAuthorization parses `Hmac key-id="<id>", signature="<base64>"`.
// Both parameters are required, must be quoted and non-empty, and may appear only once.
func ParseAuthorization(header string) (Authorization, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Authorization{}, ErrMissingAuthorization
	}
	scheme, params, _ := strings.Cut(header, " ")
	if scheme != Scheme {
		return Authorization{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	var auth Authorization
	seen := make(map[string]bool, 2)
	for _, param := range strings.Split(params, ",") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return Authorization{}, fmt.Errorf("%w: parameter %q has no value", ErrMalformedAuthorization, param)
		}
		key = strings.TrimSpace(key)
		value, err := unquote(strings.TrimSpace(value))
		if err != nil {
			return Authorization{}, fmt.Errorf("%w: parameter %q: %v", ErrMalformedAuthorization, key, err)
		}
		if seen[key] {
			return Authorization{}, fmt.Errorf("%w: duplicated parameter %q", ErrMalformedAuthorization, key)
		}
		seen[key] = true

		switch key {
		case paramKeyID:
			auth.KeyID = value
		case paramSignature:
			auth.Signature = value
		default:
			return Authorization{}, fmt.Errorf("%w: unknown parameter %q", ErrMalformedAuthorization, key)
		}
	}

	if auth.KeyID == "" || auth.Signature == "" {
		return Authorization{}, fmt.Errorf("%w: key-id and signature are required", ErrMalformedAuthorization)
	}
	return auth, nil
}

func unquote(value string) (string, error) {
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return "", fmt.Errorf("value must be quoted")
	}
	value = value[1 : len(value)-1]
	if strings.ContainsRune(value, '"') {
		return "", fmt.Errorf("unexpected quote")
	}
	return value, nil
}

func (a Authorization) String() string {
	return fmt.Sprintf(`%s %s="%s", %s="%s"`, Scheme, paramKeyID, a.KeyID, paramSignature, a.Signature)
}
