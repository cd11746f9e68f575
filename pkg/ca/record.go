package ca

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
)

var ErrMalformedDatabase = errors.New("malformed certificate database")

type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// statusFromCode maps the single letter status of index.txt. Unknown codes are
// treated as revoked so that nothing is trusted unless marked valid.
func statusFromCode(code string) Status {
	switch code {
	case "V":
		return StatusValid
	case "E":
		return StatusExpired
	default:
		return StatusRevoked
	}
}

// CertificateRecord is one row of the CA database.
type CertificateRecord struct {
	Status           Status
	Expiration       time.Time
	Revocation       time.Time
	RevocationReason string
	Serial           string
	Filename         string
	Subject          string
}

func (r CertificateRecord) CommonName() string {
	return CommonName(r.Subject)
}

const (
	utcTimeLayout         = "060102150405Z"
	generalizedTimeLayout = "20060102150405Z"
)

func parseDatabaseTime(value string) (time.Time, error) {
	if len(value) == len(generalizedTimeLayout) {
		return time.Parse(generalizedTimeLayout, value)
	}
	return time.Parse(utcTimeLayout, value)
}

// ParseDatabase reads an OpenSSL index.txt. Columns are tab separated:
// status, expiration, revocation[,reason], serial, filename and subject.
// Lines with an empty status are skipped.
func ParseDatabase(r io.Reader) ([]CertificateRecord, error) {
	var records []CertificateRecord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		if cols[0] == "" {
			continue
		}
		if len(cols) < 6 {
			return nil, fmt.Errorf("%w: line %d has %d columns", ErrMalformedDatabase, line, len(cols))
		}

		record := CertificateRecord{
			Status:   statusFromCode(cols[0]),
			Serial:   cols[3],
			Filename: cols[4],
			Subject:  strings.Join(cols[5:], "\t"),
		}
		expiration, err := parseDatabaseTime(cols[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d expiration: %v", ErrMalformedDatabase, line, err)
		}
		record.Expiration = expiration
		if cols[2] != "" {
			revocation, reason, _ := strings.Cut(cols[2], ",")
			record.Revocation, err = parseDatabaseTime(revocation)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d revocation: %v", ErrMalformedDatabase, line, err)
			}
			record.RevocationReason = reason
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CommonName extracts CN from a subject in the `/C=AU/O=Acme/CN=abc123` form.
// The `C = AU, O = Acme, CN = abc123` form is accepted as well.
func CommonName(subject string) string {
	subject = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(subject), "subject="))
	if strings.HasPrefix(subject, "/") {
		for _, component := range strings.Split(subject, "/") {
			if cn, ok := strings.CutPrefix(component, "CN="); ok {
				return cn
			}
		}
		return ""
	}
	for _, component := range strings.Split(subject, ",") {
		key, value, ok := strings.Cut(component, "=")
		if ok && strings.TrimSpace(key) == "CN" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func FilterByCN(records []CertificateRecord, cn string) []CertificateRecord {
	return lo.Filter(records, func(r CertificateRecord, _ int) bool {
		return r.CommonName() == cn
	})
}

func FilterByStatus(records []CertificateRecord, status Status) []CertificateRecord {
	return lo.Filter(records, func(r CertificateRecord, _ int) bool {
		return r.Status == status
	})
}
