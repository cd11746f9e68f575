package utils

import (
	"crypto/x509"
	"errors"
	"os"
)

var ErrEmptyCAPool = errors.New("no certificates found in CA file")

// CreateCAPool loads every PEM certificate found in caCertFile.
func CreateCAPool(caCertFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, ErrEmptyCAPool
	}
	return pool, nil
}
