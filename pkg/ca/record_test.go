package ca

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatabase = "R\t271028051938Z\t261018051938Z,keyCompromise\t1000\tunknown\t/C=AU/O=Acme/CN=abc123\n" +
	"V\t271028051938Z\t\t1001\tunknown\t/C=AU/O=Acme/CN=abc123/emailAddress=dev@example.com\n" +
	"\t271028051938Z\t\t1002\tunknown\t/C=AU/O=Acme/CN=abc123\n" +
	"E\t20500101000000Z\t\t1003\tunknown\t/CN=xyz789\n" +
	"X\t271028051938Z\t\t1004\tunknown\t/CN=abc1234\n"

func TestParseDatabase(t *testing.T) {
	records, err := ParseDatabase(strings.NewReader(testDatabase))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, StatusRevoked, records[0].Status)
	assert.Equal(t, "1000", records[0].Serial)
	assert.Equal(t, "keyCompromise", records[0].RevocationReason)
	assert.Equal(t, time.Date(2026, 10, 18, 5, 19, 38, 0, time.UTC), records[0].Revocation)

	assert.Equal(t, StatusValid, records[1].Status)
	assert.Equal(t, "1001", records[1].Serial)
	assert.Equal(t, "/C=AU/O=Acme/CN=abc123/emailAddress=dev@example.com", records[1].Subject)
	assert.Equal(t, time.Date(2027, 10, 28, 5, 19, 38, 0, time.UTC), records[1].Expiration)
	assert.True(t, records[1].Revocation.IsZero())

	assert.Equal(t, StatusExpired, records[2].Status)
	assert.Equal(t, time.Date(2050, 1, 1, 0, 0, 0, 0, time.UTC), records[2].Expiration)

	assert.Equal(t, StatusRevoked, records[3].Status, "unknown status codes are never valid")
}

func TestParseDatabaseErrors(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"Missing columns", "V\t271028051938Z\t\t1000\n"},
		{"Invalid expiration", "V\tnever\t\t1000\tunknown\t/CN=abc123\n"},
		{"Invalid revocation", "R\t271028051938Z\tyesterday\t1000\tunknown\t/CN=abc123\n"},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			_, err := ParseDatabase(strings.NewReader(tc.data))
			assert.ErrorIs(t, err, ErrMalformedDatabase)
		})
	}

	t.Run("Testing empty database", func(t *testing.T) {
		records, err := ParseDatabase(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestCommonName(t *testing.T) {
	testCases := []struct {
		subject string
		cn      string
	}{
		{"/C=AU/O=Acme/CN=abc123", "abc123"},
		{"/C=AU/O=Acme/CN=abc123/emailAddress=dev@example.com", "abc123"},
		{"subject=/C=AU/CN=abc123\n", "abc123"},
		{"C = AU, O = Acme, CN = abc123", "abc123"},
		{"/C=AU/O=Acme", ""},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %q", tc.subject), func(t *testing.T) {
			assert.Equal(t, tc.cn, CommonName(tc.subject))
		})
	}
}

func TestFilterByCN(t *testing.T) {
	records, err := ParseDatabase(strings.NewReader(testDatabase))
	require.NoError(t, err)

	abc := FilterByCN(records, "abc123")
	assert.Len(t, abc, 2)
	assert.Len(t, FilterByStatus(abc, StatusValid), 1)
	assert.Empty(t, FilterByCN(records, "abc"))
}
