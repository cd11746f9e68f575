package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAuthorization   = errors.New("no authorization header")
	ErrUnsupportedScheme      = errors.New("unsupported authorization scheme")
	ErrMalformedAuthorization = errors.New("malformed authorization")
	ErrMissingHeaders         = errors.New("missing signed request headers")
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrExpired                = errors.New("request signature expired")
	ErrUnknownDevice          = errors.New("unknown device")
	ErrSignatureMismatch      = errors.New("signature mismatch")
)

type Kind int

const (
	KindMalformedRequest Kind = iota + 1
	KindUnsupportedScheme
	KindMalformedAuthorization
	KindInvalidTimestamp
	KindExpired
	KindUnknownDevice
	KindSignatureMismatch
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "MalformedRequest"
	case KindUnsupportedScheme:
		return "UnsupportedScheme"
	case KindMalformedAuthorization:
		return "MalformedAuthorization"
	case KindInvalidTimestamp:
		return "InvalidTimestamp"
	case KindExpired:
		return "Expired"
	case KindUnknownDevice:
		return "UnknownDevice"
	case KindSignatureMismatch:
		return "SignatureMismatch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Rejection describes why a request was not authenticated.
// FallThrough marks soft failures that only mean "not authenticated", as opposed
// to client errors in the credentials themselves.
type Rejection struct {
	Kind        Kind
	Status      int
	FallThrough bool
	DeviceID    string
	Err         error
}

func (r *Rejection) Error() string {
	return r.Kind.String() + ": " + r.Err.Error()
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(kind Kind, err error) *Rejection {
	r := &Rejection{Kind: kind, Err: err}
	switch kind {
	case KindMalformedRequest, KindUnsupportedScheme, KindInvalidTimestamp:
		r.Status = http.StatusBadRequest
	case KindExpired:
		r.Status = http.StatusUnauthorized
	default:
		r.Status = http.StatusUnauthorized
		r.FallThrough = true
	}
	return r
}

// SecretStore resolves the shared secret of a device.
type SecretStore interface {
	Secret(deviceID string) (string, bool)
}

type Verifier struct {
	secrets SecretStore
	clock   Clock
}

func NewVerifier(secrets SecretStore, clock Clock) *Verifier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Verifier{secrets: secrets, clock: clock}
}

// Authenticate runs the request checks in order and returns the id of the calling
// device, or the first failing check.
func (v *Verifier) Authenticate(r *http.Request, requireVersion bool) (string, *Rejection) {
	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		return "", reject(KindMalformedRequest, ErrMissingAuthorization)
	}

	authz, err := ParseAuthorization(header)
	if err != nil {
		if errors.Is(err, ErrUnsupportedScheme) {
			return "", reject(KindUnsupportedScheme, err)
		}
		return "", reject(KindMalformedAuthorization, err)
	}

	createdAt := r.Header.Get(HeaderCreatedAt)
	expiry := r.Header.Get(HeaderExpiry)
	version := r.Header.Get(HeaderFirmwareVersion)
	if createdAt == "" || expiry == "" || (requireVersion && version == "") {
		return "", reject(KindMalformedAuthorization, ErrMissingHeaders)
	}

	if _, err := ParseTimestamp(createdAt); err != nil {
		return "", reject(KindInvalidTimestamp, fmt.Errorf("%w: created-at: %v", ErrInvalidTimestamp, err))
	}
	expiresAt, err := ParseTimestamp(expiry)
	if err != nil {
		return "", reject(KindInvalidTimestamp, fmt.Errorf("%w: expiry: %v", ErrInvalidTimestamp, err))
	}
	if expiresAt.Before(v.clock.Now()) {
		rej := reject(KindExpired, ErrExpired)
		rej.DeviceID = authz.KeyID
		return "", rej
	}

	secret, ok := v.secrets.Secret(authz.KeyID)
	if !ok {
		rej := reject(KindUnknownDevice, ErrUnknownDevice)
		rej.DeviceID = authz.KeyID
		return "", rej
	}

	message := CanonicalRequest(r.Method, r.URL.Path, version, createdAt, expiry)
	if !Verify(message, secret, authz.Signature) {
		rej := reject(KindSignatureMismatch, ErrSignatureMismatch)
		rej.DeviceID = authz.KeyID
		return "", rej
	}
	return authz.KeyID, nil
}
