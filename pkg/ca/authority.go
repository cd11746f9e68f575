package ca

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration        = errors.New("invalid certificate authority configuration")
	ErrSubjectExtraction    = errors.New("unable to extract subject common name from CSR")
	ErrSubjectMismatch      = errors.New("CSR common name does not match device")
	ErrInvalidDeviceID      = errors.New("invalid device id")
	ErrCertificateAuthority = errors.New("certificate authority failure")
)

// CertificateAuthority is the set of CA operations the issuance flow relies on.
type CertificateAuthority interface {
	// Subject returns the subject line of a PEM encoded CSR.
	Subject(ctx context.Context, csr []byte) (string, error)
	// Certificates returns the records whose subject CN equals cn, after refreshing
	// expired entries.
	Certificates(ctx context.Context, cn string) ([]CertificateRecord, error)
	Revoke(ctx context.Context, record CertificateRecord) error
	RegenerateCRL(ctx context.Context) error
	// Sign issues a certificate for csr and writes it as PEM to out.
	Sign(ctx context.Context, csr []byte, out string) error
}

// AuthorityError is returned when a CA operation fails during issuance. Revoked
// lists the serials already revoked by that issuance, which are not restored.
type AuthorityError struct {
	Op      string
	Revoked []string
	Err     error
}

func (e *AuthorityError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", ErrCertificateAuthority, e.Op, e.Err)
	if len(e.Revoked) > 0 {
		msg += fmt.Sprintf(" (revoked without replacement: %s)", strings.Join(e.Revoked, ","))
	}
	return msg
}

func (e *AuthorityError) Unwrap() []error {
	return []error{ErrCertificateAuthority, e.Err}
}
