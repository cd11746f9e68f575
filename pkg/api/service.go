package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lamassuiot/providore/pkg/models/device"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Service interface {
	Health(ctx context.Context) bool
	GetConfig(ctx context.Context, deviceID string, version string) ([]byte, error)
	GetFirmware(ctx context.Context, deviceID string, version string) ([]byte, error)
	CheckUpdate(ctx context.Context, deviceID string, version string) (string, error)
	GetCertificate(ctx context.Context, deviceID string) ([]byte, error)
	RequestCertificate(ctx context.Context, deviceID string, csr []byte) ([]byte, error)
	GetCRL(ctx context.Context) ([]byte, error)
}

// CertificateIssuer is implemented by ca.Manager.
type CertificateIssuer interface {
	Issue(ctx context.Context, csr []byte, deviceID string) ([]byte, error)
	CertificatePath(deviceID string) (string, error)
}

// Stores are the folders the service reads device files from.
type Stores struct {
	ConfigDir     string
	FirmwareStore string
	CRLFile       string
}

const defaultFirmwareFile = "firmware.bin"

var (
	// Client errors
	ErrUnauthenticated = errors.New("request is not authenticated") //401
	ErrFileNotFound    = errors.New("file not found")               //404
	ErrNoUpdate        = errors.New("no firmware update available") //204
	ErrEmptyCSR        = errors.New("empty CSR")                    //400
	ErrCSRTooLarge     = errors.New("CSR too large")                //400

	//Server errors
	ErrReadFile = errors.New("unable to read file")
)

type providoreService struct {
	directory *device.Directory
	issuer    CertificateIssuer
	stores    Stores
	logger    log.Logger
}

func NewProvidoreService(directory *device.Directory, issuer CertificateIssuer, stores Stores, logger log.Logger) Service {
	return &providoreService{
		directory: directory,
		issuer:    issuer,
		stores:    stores,
		logger:    logger,
	}
}

func (s *providoreService) Health(ctx context.Context) bool {
	return true
}

func (s *providoreService) lookup(deviceID string) (device.Device, error) {
	if deviceID == "" {
		return device.Device{}, ErrUnauthenticated
	}
	d, ok := s.directory.Lookup(deviceID)
	if !ok {
		return device.Device{}, device.ErrDeviceNotFound
	}
	return d, nil
}

func (s *providoreService) GetConfig(ctx context.Context, deviceID string, version string) ([]byte, error) {
	d, err := s.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	fw, err := d.FirmwareFor(version)
	if err != nil {
		return nil, err
	}
	name := fw.Config
	if name == "" {
		name = fw.Version + ".json"
	}
	return s.readFile(ctx, filepath.Join(s.stores.ConfigDir, d.Id, name))
}

func (s *providoreService) GetFirmware(ctx context.Context, deviceID string, version string) ([]byte, error) {
	d, err := s.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	fw, err := d.FirmwareFor(version)
	if err != nil {
		return nil, err
	}
	name := fw.File
	if name == "" {
		name = defaultFirmwareFile
	}
	return s.readFile(ctx, filepath.Join(s.stores.FirmwareStore, fw.Type, fw.Version, name))
}

func (s *providoreService) CheckUpdate(ctx context.Context, deviceID string, version string) (string, error) {
	d, err := s.lookup(deviceID)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", device.ErrVersionNotFound
	}
	fw, err := d.FirmwareFor(version)
	if err != nil {
		return "", err
	}
	if fw.Next == "" {
		return "", ErrNoUpdate
	}
	if _, err := d.FirmwareFor(fw.Next); err != nil {
		level.Warn(loggerFrom(ctx, s.logger)).Log("msg", "Firmware points to an unknown next version", "device", d.Id, "version", fw.Version, "next", fw.Next)
		return "", err
	}
	return fw.Next, nil
}

func (s *providoreService) GetCertificate(ctx context.Context, deviceID string) ([]byte, error) {
	d, err := s.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	path, err := s.issuer.CertificatePath(d.Id)
	if err != nil {
		return nil, err
	}
	return s.readFile(ctx, path)
}

func (s *providoreService) RequestCertificate(ctx context.Context, deviceID string, csr []byte) ([]byte, error) {
	d, err := s.lookup(deviceID)
	if err != nil {
		return nil, err
	}
	if len(csr) == 0 {
		return nil, ErrEmptyCSR
	}
	return s.issuer.Issue(ctx, csr, d.Id)
}

func (s *providoreService) GetCRL(ctx context.Context) ([]byte, error) {
	return s.readFile(ctx, s.stores.CRLFile)
}

func (s *providoreService) readFile(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filepath.Base(name))
	}
	if err != nil {
		level.Error(loggerFrom(ctx, s.logger)).Log("err", err, "msg", "Could not read file "+name)
		return nil, ErrReadFile
	}
	return data, nil
}
