package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lamassuiot/providore/pkg/auth"
	"github.com/lamassuiot/providore/pkg/ca"
	"github.com/lamassuiot/providore/pkg/models/device"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"

	"github.com/go-kit/kit/tracing/opentracing"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	stdopentracing "github.com/opentracing/opentracing-go"
)

// MaxCSRSize bounds the body of a certificate request.
const MaxCSRSize = 64 << 10

var ErrMissingSecret = errors.New("no secret for signing device payload")

type errorer interface {
	error() error
}

type contextKey int

const loggerContextKey contextKey = iota

func HTTPToContext(logger log.Logger) httptransport.RequestFunc {
	return func(ctx context.Context, req *http.Request) context.Context {
		// Try to join to a trace propagated in `req`.
		var reqLogger log.Logger
		uberTraceId := req.Header.Values("Uber-Trace-Id")
		if uberTraceId != nil {
			reqLogger = log.With(logger, "span_id", uberTraceId)
		} else {
			span := stdopentracing.SpanFromContext(ctx)
			reqLogger = log.With(logger, "span_id", span)
		}
		if deviceID, ok := auth.DeviceFromContext(ctx); ok {
			reqLogger = log.With(reqLogger, "device", deviceID)
		}
		return context.WithValue(ctx, loggerContextKey, reqLogger)
	}
}

func loggerFrom(ctx context.Context, fallback log.Logger) log.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(log.Logger); ok {
		return logger
	}
	return fallback
}

type HTTPConfig struct {
	Verifier *auth.Verifier
	// Secrets signs device payloads, usually the same directory the verifier uses.
	Secrets              auth.SecretStore
	Clock                auth.Clock
	CSRRequestsPerMinute int
}

func MakeHTTPHandler(s Service, cfg HTTPConfig, logger log.Logger, otTracer stdopentracing.Tracer) *mux.Router {
	r := mux.NewRouter()
	e := MakeServerEndpoints(s, otTracer)
	if cfg.Clock == nil {
		cfg.Clock = auth.SystemClock{}
	}
	options := []httptransport.ServerOption{
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(level.Error(logger))),
		httptransport.ServerErrorEncoder(encodeError),
	}
	withTracing := func(operation string) []httptransport.ServerOption {
		return append(
			options[:len(options):len(options)],
			httptransport.ServerBefore(opentracing.HTTPToContext(otTracer, operation, logger)),
			httptransport.ServerBefore(HTTPToContext(logger)),
		)
	}

	authenticated := auth.Middleware(cfg.Verifier, logger)
	versioned := auth.Middleware(cfg.Verifier, logger, auth.RequireFirmwareVersion())
	encodeSigned := encodeSignedResponse(cfg.Secrets, cfg.Clock)

	r.Methods("GET").Path("/health").Handler(httptransport.NewServer(
		e.HealthEndpoint,
		decodeHealthRequest,
		encodeResponse,
		withTracing("Health")...,
	))

	r.Methods("GET").Path("/config.json").Handler(authenticated(httptransport.NewServer(
		e.GetConfigEndpoint,
		decodeGetConfigRequest,
		encodeSigned,
		withTracing("GetConfig")...,
	)))

	r.Methods("GET").Path("/firmware.bin").Handler(authenticated(httptransport.NewServer(
		e.GetFirmwareEndpoint,
		decodeGetFirmwareRequest,
		encodeSigned,
		withTracing("GetFirmware")...,
	)))

	r.Methods("GET").Path("/firmware/update").Handler(versioned(httptransport.NewServer(
		e.CheckUpdateEndpoint,
		decodeCheckUpdateRequest,
		encodeCheckUpdateResponse,
		withTracing("CheckUpdate")...,
	)))

	r.Methods("GET").Path("/client.cert.pem").Handler(authenticated(httptransport.NewServer(
		e.GetCertificateEndpoint,
		decodeGetCertificateRequest,
		encodeSigned,
		withTracing("GetCertificate")...,
	)))

	var requestCertificate http.Handler = authenticated(httptransport.NewServer(
		e.RequestCertificateEndpoint,
		decodePostCSRRequest,
		encodeSigned,
		withTracing("RequestCertificate")...,
	))
	if cfg.CSRRequestsPerMinute > 0 {
		requestCertificate = httprate.LimitByIP(cfg.CSRRequestsPerMinute, time.Minute)(requestCertificate)
	}
	r.Methods("POST").Path("/certificates/request").Handler(requestCertificate)

	r.Methods("GET").Path("/crl.pem").Handler(httptransport.NewServer(
		e.GetCRLEndpoint,
		decodeGetCRLRequest,
		encodeFileResponse,
		withTracing("GetCRL")...,
	))

	return r
}

func decodeHealthRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req healthRequest
	return req, nil
}

func deviceFrom(ctx context.Context) (string, error) {
	deviceID, ok := auth.DeviceFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return deviceID, nil
}

func decodeGetConfigRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	deviceID, err := deviceFrom(ctx)
	if err != nil {
		return nil, err
	}
	return deviceFileRequest{DeviceID: deviceID, Version: r.Header.Get(auth.HeaderFirmwareVersion)}, nil
}

func decodeGetFirmwareRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	deviceID, err := deviceFrom(ctx)
	if err != nil {
		return nil, err
	}
	return deviceFileRequest{DeviceID: deviceID, Version: r.URL.Query().Get("version")}, nil
}

func decodeCheckUpdateRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	deviceID, err := deviceFrom(ctx)
	if err != nil {
		return nil, err
	}
	return deviceFileRequest{DeviceID: deviceID, Version: r.Header.Get(auth.HeaderFirmwareVersion)}, nil
}

func decodeGetCertificateRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	deviceID, err := deviceFrom(ctx)
	if err != nil {
		return nil, err
	}
	return deviceFileRequest{DeviceID: deviceID}, nil
}

func decodePostCSRRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	deviceID, err := deviceFrom(ctx)
	if err != nil {
		return nil, err
	}
	csr, err := io.ReadAll(io.LimitReader(r.Body, MaxCSRSize+1))
	if err != nil {
		return nil, err
	}
	if len(csr) > MaxCSRSize {
		return nil, ErrCSRTooLarge
	}
	if len(csr) == 0 {
		return nil, ErrEmptyCSR
	}
	return postCSRRequest{DeviceID: deviceID, CSR: csr}, nil
}

func decodeGetCRLRequest(ctx context.Context, r *http.Request) (request interface{}, err error) {
	var req getCRLRequest
	return req, nil
}

func encodeResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if e, ok := response.(errorer); ok && e.error() != nil {
		// Not a Go kit transport error, but a business-logic error.
		// Provide those as HTTP errors.
		encodeError(ctx, e.error(), w)
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(response)
}

func encodeFileResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(fileResponse)
	if resp.Err != nil {
		encodeError(ctx, resp.Err, w)
		return nil
	}
	w.Header().Set("Content-Type", resp.ContentType)
	_, err := w.Write(resp.Data)
	return err
}

// encodeSignedResponse signs the whole body with the device secret before
// writing headers and body.
func encodeSignedResponse(secrets auth.SecretStore, clock auth.Clock) httptransport.EncodeResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter, response interface{}) error {
		resp := response.(signedFileResponse)
		if resp.Err != nil {
			encodeError(ctx, resp.Err, w)
			return nil
		}
		secret, ok := secrets.Secret(resp.DeviceID)
		if !ok {
			encodeError(ctx, ErrMissingSecret, w)
			return ErrMissingSecret
		}
		auth.SignPayload(w.Header(), resp.Data, secret, clock.Now())
		w.Header().Set("Content-Type", resp.ContentType)
		_, err := w.Write(resp.Data)
		return err
	}
}

func encodeCheckUpdateResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	resp := response.(checkUpdateResponse)
	if errors.Is(resp.Err, ErrNoUpdate) {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	if resp.Err != nil {
		encodeError(ctx, resp.Err, w)
		return nil
	}
	w.Header().Set("Location", "/firmware.bin?version="+url.QueryEscape(resp.Next))
	w.WriteHeader(http.StatusFound)
	return nil
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		panic("encodeError with nil error")
	}
	code := codeFrom(err)
	http.Error(w, http.StatusText(code), code)
}

func codeFrom(err error) int {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrVersionNotFound),
		errors.Is(err, device.ErrNoFirmware), errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyCSR), errors.Is(err, ErrCSRTooLarge),
		errors.Is(err, ca.ErrSubjectExtraction), errors.Is(err, ca.ErrSubjectMismatch), errors.Is(err, ca.ErrInvalidDeviceID):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
