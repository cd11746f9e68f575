package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCreatedAt = "2021-04-08T11:00:21Z"
	testExpiry    = "2021-04-08T11:15:21Z"
)

type secrets map[string]string

func (s secrets) Secret(id string) (string, bool) {
	secret, ok := s[id]
	return secret, ok
}

func fixedClock(value string) Clock {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return ClockFunc(func() time.Time { return t })
}

func signedRequest(method, path, keyID, secret, version, createdAt, expiry string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	signature := Sign(CanonicalRequest(method, req.URL.Path, version, createdAt, expiry), secret)
	req.Header.Set(HeaderAuthorization, Authorization{KeyID: keyID, Signature: signature}.String())
	req.Header.Set(HeaderCreatedAt, createdAt)
	req.Header.Set(HeaderExpiry, expiry)
	if version != "" {
		req.Header.Set(HeaderFirmwareVersion, version)
	}
	return req
}

func TestSignKnownVector(t *testing.T) {
	message := CanonicalRequest("GET", "/firmware.bin", "", testCreatedAt, testExpiry)
	assert.Equal(t, "get\n/firmware.bin\n2021-04-08T11:00:21Z\n2021-04-08T11:15:21Z", string(message))

	signature := Sign(message, "secret")
	assert.Equal(t, "menypO0/7kcWdva0fRckI+eapo3PxocfdZplvcFMHUE=", signature)
	assert.Equal(t, signature, Sign(message, "secret"))
	assert.NotEqual(t, signature, Sign(message, "notsecret"))
	assert.True(t, Verify(message, "secret", signature))
	assert.False(t, Verify(message, "notsecret", signature))
	assert.False(t, Verify(message, "secret", "not base64!"))
}

func TestCanonicalRequestMutations(t *testing.T) {
	base := []string{"get", "/firmware.bin", "1.0.0", testCreatedAt, testExpiry}
	signature := Sign(CanonicalRequest(base[0], base[1], base[2], base[3], base[4]), "secret")

	for i := range base {
		t.Run(fmt.Sprintf("Testing mutation of field %d", i), func(t *testing.T) {
			fields := append([]string(nil), base...)
			fields[i] = fields[i] + "x"
			message := CanonicalRequest(fields[0], fields[1], fields[2], fields[3], fields[4])
			assert.False(t, Verify(message, "secret", signature))
		})
	}

	t.Run("Testing method casing is normalized", func(t *testing.T) {
		message := CanonicalRequest("GET", base[1], base[2], base[3], base[4])
		assert.True(t, Verify(message, "secret", signature))
	})
}

func TestParseTimestamp(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  time.Time
		err   bool
	}{
		{"RFC3339", "2021-04-08T11:00:21Z", time.Date(2021, 4, 8, 11, 0, 21, 0, time.UTC), false},
		{"Fractional seconds", "2021-04-08T11:00:21.250Z", time.Date(2021, 4, 8, 11, 0, 21, 250000000, time.UTC), false},
		{"Offset", "2021-04-08T13:00:21+02:00", time.Date(2021, 4, 8, 11, 0, 21, 0, time.UTC), false},
		{"No zone", "2021-04-08T11:00:21", time.Date(2021, 4, 8, 11, 0, 21, 0, time.UTC), false},
		{"Garbage", "yesterday", time.Time{}, true},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			got, err := ParseTimestamp(tc.value)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s; want %s", got, tc.want)
		})
	}
}

func TestParseAuthorization(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		want   Authorization
		err    error
	}{
		{"Valid header", `Hmac key-id="abc123", signature="c2lnbmF0dXJl=="`, Authorization{KeyID: "abc123", Signature: "c2lnbmF0dXJl=="}, nil},
		{"Reordered parameters", `Hmac signature="sig", key-id="abc123"`, Authorization{KeyID: "abc123", Signature: "sig"}, nil},
		{"Empty header", "", Authorization{}, ErrMissingAuthorization},
		{"Bearer scheme", "Bearer token", Authorization{}, ErrUnsupportedScheme},
		{"Lowercase scheme", `hmac key-id="abc123", signature="sig"`, Authorization{}, ErrUnsupportedScheme},
		{"No parameters", "Hmac abc.123", Authorization{}, ErrMalformedAuthorization},
		{"Missing signature", `Hmac key-id="abc123"`, Authorization{}, ErrMalformedAuthorization},
		{"Empty key id", `Hmac key-id="", signature="sig"`, Authorization{}, ErrMalformedAuthorization},
		{"Unquoted value", `Hmac key-id=abc123, signature="sig"`, Authorization{}, ErrMalformedAuthorization},
		{"Duplicated parameter", `Hmac key-id="a", key-id="b", signature="sig"`, Authorization{}, ErrMalformedAuthorization},
		{"Unknown parameter", `Hmac key-id="a", signature="sig", nonce="1"`, Authorization{}, ErrMalformedAuthorization},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			got, err := ParseAuthorization(tc.header)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	v := NewVerifier(secrets{"abc123": "secret"}, fixedClock("2021-04-08T11:05:00Z"))

	testCases := []struct {
		name           string
		request        func() *http.Request
		requireVersion bool
		kind           Kind
		status         int
		fallThrough    bool
	}{
		{"Valid request", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "abc123", "secret", "", testCreatedAt, testExpiry)
		}, false, 0, 0, false},
		{"Valid request with zone-less timestamps", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "abc123", "secret", "", "2021-04-08T11:00:21", "2021-04-08T11:15:21")
		}, false, 0, 0, false},
		{"Valid request with version", func() *http.Request {
			return signedRequest("GET", "/firmware/update", "abc123", "secret", "1.0.0", testCreatedAt, testExpiry)
		}, true, 0, 0, false},
		{"Missing authorization", func() *http.Request {
			return httptest.NewRequest("GET", "/firmware.bin", nil)
		}, false, KindMalformedRequest, http.StatusBadRequest, false},
		{"Unsupported scheme", func() *http.Request {
			req := signedRequest("GET", "/firmware.bin", "abc123", "secret", "", testCreatedAt, testExpiry)
			req.Header.Set(HeaderAuthorization, "Basic YWJjOjEyMw==")
			return req
		}, false, KindUnsupportedScheme, http.StatusBadRequest, false},
		{"Unparseable authorization", func() *http.Request {
			req := signedRequest("GET", "/firmware.bin", "abc123", "secret", "", testCreatedAt, testExpiry)
			req.Header.Set(HeaderAuthorization, "Hmac abc.123")
			return req
		}, false, KindMalformedAuthorization, http.StatusUnauthorized, true},
		{"Missing expiry", func() *http.Request {
			req := signedRequest("GET", "/firmware.bin", "abc123", "secret", "", testCreatedAt, testExpiry)
			req.Header.Del(HeaderExpiry)
			return req
		}, false, KindMalformedAuthorization, http.StatusUnauthorized, true},
		{"Missing required version", func() *http.Request {
			return signedRequest("GET", "/firmware/update", "abc123", "secret", "", testCreatedAt, testExpiry)
		}, true, KindMalformedAuthorization, http.StatusUnauthorized, true},
		{"Invalid timestamp", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "abc123", "secret", "", "yesterday", testExpiry)
		}, false, KindInvalidTimestamp, http.StatusBadRequest, false},
		{"Expired request", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "abc123", "secret", "", "2021-04-08T10:00:00Z", "2021-04-08T10:15:00Z")
		}, false, KindExpired, http.StatusUnauthorized, false},
		{"Expired request from unknown device", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "xyz123", "secret", "", "2021-04-08T10:00:00Z", "2021-04-08T10:15:00Z")
		}, false, KindExpired, http.StatusUnauthorized, false},
		{"Unknown device", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "xyz123", "secret", "", testCreatedAt, testExpiry)
		}, false, KindUnknownDevice, http.StatusUnauthorized, true},
		{"Wrong secret", func() *http.Request {
			return signedRequest("GET", "/firmware.bin", "abc123", "wrongsecret", "", testCreatedAt, testExpiry)
		}, false, KindSignatureMismatch, http.StatusUnauthorized, true},
		{"Signed for another path", func() *http.Request {
			req := signedRequest("GET", "/config.json", "abc123", "secret", "", testCreatedAt, testExpiry)
			req.URL.Path = "/firmware.bin"
			return req
		}, false, KindSignatureMismatch, http.StatusUnauthorized, true},
		{"Version header not signed", func() *http.Request {
			req := signedRequest("GET", "/config.json", "abc123", "secret", "", testCreatedAt, testExpiry)
			req.Header.Set(HeaderFirmwareVersion, "2.0.0")
			return req
		}, false, KindSignatureMismatch, http.StatusUnauthorized, true},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			deviceID, rejection := v.Authenticate(tc.request(), tc.requireVersion)
			if tc.kind == 0 {
				require.Nil(t, rejection)
				assert.Equal(t, "abc123", deviceID)
				return
			}
			require.NotNil(t, rejection)
			assert.Empty(t, deviceID)
			assert.Equal(t, tc.kind, rejection.Kind)
			assert.Equal(t, tc.status, rejection.Status)
			assert.Equal(t, tc.fallThrough, rejection.FallThrough)
		})
	}
}

func TestExpiryWinsOverValidSignature(t *testing.T) {
	req := signedRequest("GET", "/firmware.bin", "abc123", "secret", "", testCreatedAt, testExpiry)
	v := NewVerifier(secrets{"abc123": "secret"}, fixedClock("2021-04-08T11:15:22Z"))

	_, rejection := v.Authenticate(req, false)
	require.NotNil(t, rejection)
	assert.Equal(t, KindExpired, rejection.Kind)
	assert.ErrorIs(t, rejection, ErrExpired)
}

func TestSignPayload(t *testing.T) {
	now := time.Date(2021, 4, 8, 11, 0, 21, 0, time.UTC)
	body := []byte(`{"interval":30}`)
	h := http.Header{}

	SignPayload(h, body, "secret", now)

	assert.Equal(t, "2021-04-08T11:00:21.000Z", h.Get(HeaderCreatedAt))
	assert.Equal(t, "2021-04-08T11:15:21.000Z", h.Get(HeaderExpiry))
	want := Sign([]byte("{\"interval\":30}\n2021-04-08T11:00:21.000Z\n2021-04-08T11:15:21.000Z"), "secret")
	assert.Equal(t, want, h.Get(HeaderSignature))

	assert.NoError(t, VerifyPayload(h, body, "secret", now.Add(time.Minute)))
	assert.ErrorIs(t, VerifyPayload(h, body, "notsecret", now), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyPayload(h, []byte(`{"interval":31}`), "secret", now), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyPayload(h, body, "secret", now.Add(SignatureValidity+time.Second)), ErrExpired)
	assert.ErrorIs(t, VerifyPayload(http.Header{}, body, "secret", now), ErrMissingHeaders)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(secrets{"abc123": "secret"}, fixedClock("2021-04-08T11:05:00Z"))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := DeviceFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(id))
	})
	handler := Middleware(v, log.NewNopLogger())(next)

	testCases := []struct {
		name    string
		request *http.Request
		status  int
		body    string
	}{
		{"Authenticated", signedRequest("GET", "/config.json", "abc123", "secret", "", testCreatedAt, testExpiry), http.StatusOK, "abc123"},
		{"No authorization", httptest.NewRequest("GET", "/config.json", nil), http.StatusBadRequest, "Bad Request\n"},
		{"Wrong secret", signedRequest("GET", "/config.json", "abc123", "nope", "", testCreatedAt, testExpiry), http.StatusUnauthorized, "Unauthorized\n"},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Testing %s", tc.name), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tc.request)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.body, rec.Body.String())
		})
	}

	t.Run("Testing required firmware version", func(t *testing.T) {
		versioned := Middleware(v, log.NewNopLogger(), RequireFirmwareVersion())(next)
		rec := httptest.NewRecorder()
		versioned.ServeHTTP(rec, signedRequest("GET", "/firmware/update", "abc123", "secret", "", testCreatedAt, testExpiry))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		versioned.ServeHTTP(rec, signedRequest("GET", "/firmware/update", "abc123", "secret", "1.0.0", testCreatedAt, testExpiry))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
