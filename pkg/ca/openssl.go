package ca

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lamassuiot/providore/pkg/openssl"
	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	DefaultExtensions = "usr_cert"
	DefaultDigest     = "sha256"
)

type Runner interface {
	Run(ctx context.Context, args ...openssl.Arg) (string, error)
}

type OpenSSLConfig struct {
	// ConfigFile is the `openssl ca` configuration of the issuing CA.
	ConfigFile   string
	PasswordFile string
	Extensions   string
	Digest       string
	// The following default to index.txt, newcerts/ and crl.pem next to ConfigFile.
	IndexFile string
	CertsDir  string
	CRLFile   string
}

// OpenSSL implements CertificateAuthority with the openssl command line tool.
// Calls touching the CA database are serialized, openssl ca rewrites it in place.
type OpenSSL struct {
	mu     sync.Mutex
	cfg    OpenSSLConfig
	runner Runner
	logger log.Logger
}

func NewOpenSSL(cfg OpenSSLConfig, runner Runner, logger log.Logger) (*OpenSSL, error) {
	if cfg.ConfigFile == "" {
		return nil, fmt.Errorf("%w: missing CA config file", ErrConfiguration)
	}
	if cfg.PasswordFile == "" {
		return nil, fmt.Errorf("%w: missing CA password file", ErrConfiguration)
	}
	for _, f := range []string{cfg.ConfigFile, cfg.PasswordFile} {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a readable file", ErrConfiguration, f)
		}
	}

	dir := filepath.Dir(cfg.ConfigFile)
	if cfg.IndexFile == "" {
		cfg.IndexFile = filepath.Join(dir, "index.txt")
	}
	if cfg.CertsDir == "" {
		cfg.CertsDir = filepath.Join(dir, "newcerts")
	}
	if cfg.CRLFile == "" {
		cfg.CRLFile = filepath.Join(dir, "crl.pem")
	}
	if cfg.Extensions == "" {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Digest == "" {
		cfg.Digest = DefaultDigest
	}
	return &OpenSSL{cfg: cfg, runner: runner, logger: logger}, nil
}

func (o *OpenSSL) CRLFile() string {
	return o.cfg.CRLFile
}

func (o *OpenSSL) caArgs(extra ...string) []openssl.Arg {
	return openssl.Texts(append([]string{"ca", "-config", o.cfg.ConfigFile, "-batch", "-passin", "file:" + o.cfg.PasswordFile}, extra...)...)
}

func (o *OpenSSL) Subject(ctx context.Context, csr []byte) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "openssl: req subject")
	defer span.Finish()

	args := append(openssl.Texts("req", "-noout", "-subject", "-nameopt", "compat", "-in"), openssl.Binary(csr))
	out, err := o.runner.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "subject=")), nil
}

func (o *OpenSSL) Certificates(ctx context.Context, cn string) ([]CertificateRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "openssl: read certificate database")
	defer span.Finish()

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.runner.Run(ctx, o.caArgs("-updatedb")...); err != nil {
		return nil, err
	}
	f, err := os.Open(o.cfg.IndexFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := ParseDatabase(f)
	if err != nil {
		level.Error(o.logger).Log("err", err, "msg", "Could not parse CA database "+o.cfg.IndexFile)
		return nil, err
	}
	return FilterByCN(records, cn), nil
}

func (o *OpenSSL) Revoke(ctx context.Context, record CertificateRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "openssl: revoke")
	defer span.Finish()

	o.mu.Lock()
	defer o.mu.Unlock()

	if record.Serial == "" || strings.ContainsAny(record.Serial, `/\`) {
		return fmt.Errorf("%w: invalid serial %q", ErrMalformedDatabase, record.Serial)
	}
	_, err := o.runner.Run(ctx, o.caArgs("-revoke", filepath.Join(o.cfg.CertsDir, record.Serial+".pem"))...)
	return err
}

func (o *OpenSSL) RegenerateCRL(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "openssl: gencrl")
	defer span.Finish()

	o.mu.Lock()
	defer o.mu.Unlock()

	_, err := o.runner.Run(ctx, o.caArgs("-gencrl", "-out", o.cfg.CRLFile)...)
	return err
}

func (o *OpenSSL) Sign(ctx context.Context, csr []byte, out string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "openssl: sign")
	defer span.Finish()

	o.mu.Lock()
	defer o.mu.Unlock()

	if out == "" {
		return errors.New("empty certificate output path")
	}
	args := o.caArgs("-extensions", o.cfg.Extensions, "-md", o.cfg.Digest, "-notext", "-out", out, "-in")
	args = append(args, openssl.Binary(csr))
	_, err := o.runner.Run(ctx, args...)
	return err
}
