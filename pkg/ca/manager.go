package ca

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lamassuiot/providore/pkg/openssl"
	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Manager issues device certificates, keeping at most one valid certificate per CN.
type Manager struct {
	authority CertificateAuthority
	locker    Locker
	certStore string
	logger    log.Logger
}

func NewManager(authority CertificateAuthority, locker Locker, certStore string, logger log.Logger) (*Manager, error) {
	if certStore == "" {
		return nil, fmt.Errorf("%w: missing certificate store", ErrConfiguration)
	}
	if info, err := os.Stat(certStore); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: certificate store %s is not a directory", ErrConfiguration, certStore)
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Manager{authority: authority, locker: locker, certStore: certStore, logger: logger}, nil
}

// CertificatePath is where the current certificate of a device is stored.
func (m *Manager) CertificatePath(deviceID string) (string, error) {
	if deviceID == "" || deviceID == "." || deviceID == ".." || strings.ContainsAny(deviceID, `/\`) {
		return "", ErrInvalidDeviceID
	}
	return filepath.Join(m.certStore, deviceID+".cert.pem"), nil
}

// Issue signs csr for deviceID. Every valid certificate for the CSR common name is
// revoked, and the CRL regenerated, before the new certificate is signed.
func (m *Manager) Issue(ctx context.Context, csr []byte, deviceID string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ca: issue certificate")
	defer span.Finish()

	out, err := m.CertificatePath(deviceID)
	if err != nil {
		return nil, err
	}

	subject, err := m.authority.Subject(ctx, csr)
	if err != nil {
		var procErr *openssl.ProcessError
		if errors.As(err, &procErr) && !procErr.TimedOut {
			return nil, fmt.Errorf("%w: %v", ErrSubjectExtraction, err)
		}
		return nil, &AuthorityError{Op: "subject", Err: err}
	}
	cn := CommonName(subject)
	if cn == "" {
		return nil, fmt.Errorf("%w: subject %q", ErrSubjectExtraction, subject)
	}
	if cn != deviceID {
		return nil, fmt.Errorf("%w: CN %q, device %q", ErrSubjectMismatch, cn, deviceID)
	}

	unlock, err := m.locker.Lock(ctx, cn)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Once the lock is held the sequence runs to completion, bounded by the runner timeout.
	ctx = context.WithoutCancel(ctx)

	records, err := m.authority.Certificates(ctx, cn)
	if err != nil {
		return nil, &AuthorityError{Op: "read database", Err: err}
	}

	var revoked []string
	for _, record := range FilterByStatus(records, StatusValid) {
		if err := m.authority.Revoke(ctx, record); err != nil {
			return nil, m.partialFailure(&AuthorityError{Op: "revoke " + record.Serial, Revoked: revoked, Err: err}, cn)
		}
		revoked = append(revoked, record.Serial)
		level.Info(m.logger).Log("msg", "Certificate revoked", "cn", cn, "serial", record.Serial)

		if err := m.authority.RegenerateCRL(ctx); err != nil {
			return nil, m.partialFailure(&AuthorityError{Op: "gencrl", Revoked: revoked, Err: err}, cn)
		}
	}

	if err := m.authority.Sign(ctx, csr, out); err != nil {
		return nil, m.partialFailure(&AuthorityError{Op: "sign", Revoked: revoked, Err: err}, cn)
	}
	cert, err := os.ReadFile(out)
	if err != nil {
		return nil, m.partialFailure(&AuthorityError{Op: "read certificate", Revoked: revoked, Err: err}, cn)
	}
	level.Info(m.logger).Log("msg", "Certificate issued", "cn", cn, "revoked", len(revoked))
	return cert, nil
}

func (m *Manager) partialFailure(err *AuthorityError, cn string) error {
	if len(err.Revoked) > 0 {
		level.Error(m.logger).Log("err", err.Err, "msg", "Device left without a valid certificate", "cn", cn, "op", err.Op, "revoked", strings.Join(err.Revoked, ","))
	}
	return err
}
