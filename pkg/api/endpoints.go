package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/tracing/opentracing"
	stdopentracing "github.com/opentracing/opentracing-go"
)

type Endpoints struct {
	HealthEndpoint             endpoint.Endpoint
	GetConfigEndpoint          endpoint.Endpoint
	GetFirmwareEndpoint        endpoint.Endpoint
	CheckUpdateEndpoint        endpoint.Endpoint
	GetCertificateEndpoint     endpoint.Endpoint
	RequestCertificateEndpoint endpoint.Endpoint
	GetCRLEndpoint             endpoint.Endpoint
}

func MakeServerEndpoints(s Service, otTracer stdopentracing.Tracer) Endpoints {
	var healthEndpoint endpoint.Endpoint
	{
		healthEndpoint = MakeHealthEndpoint(s)
		healthEndpoint = opentracing.TraceServer(otTracer, "Health")(healthEndpoint)
	}
	var getConfigEndpoint endpoint.Endpoint
	{
		getConfigEndpoint = MakeGetConfigEndpoint(s)
		getConfigEndpoint = opentracing.TraceServer(otTracer, "GetConfig")(getConfigEndpoint)
	}
	var getFirmwareEndpoint endpoint.Endpoint
	{
		getFirmwareEndpoint = MakeGetFirmwareEndpoint(s)
		getFirmwareEndpoint = opentracing.TraceServer(otTracer, "GetFirmware")(getFirmwareEndpoint)
	}
	var checkUpdateEndpoint endpoint.Endpoint
	{
		checkUpdateEndpoint = MakeCheckUpdateEndpoint(s)
		checkUpdateEndpoint = opentracing.TraceServer(otTracer, "CheckUpdate")(checkUpdateEndpoint)
	}
	var getCertificateEndpoint endpoint.Endpoint
	{
		getCertificateEndpoint = MakeGetCertificateEndpoint(s)
		getCertificateEndpoint = opentracing.TraceServer(otTracer, "GetCertificate")(getCertificateEndpoint)
	}
	var requestCertificateEndpoint endpoint.Endpoint
	{
		requestCertificateEndpoint = MakeRequestCertificateEndpoint(s)
		requestCertificateEndpoint = opentracing.TraceServer(otTracer, "RequestCertificate")(requestCertificateEndpoint)
	}
	var getCRLEndpoint endpoint.Endpoint
	{
		getCRLEndpoint = MakeGetCRLEndpoint(s)
		getCRLEndpoint = opentracing.TraceServer(otTracer, "GetCRL")(getCRLEndpoint)
	}

	return Endpoints{
		HealthEndpoint:             healthEndpoint,
		GetConfigEndpoint:          getConfigEndpoint,
		GetFirmwareEndpoint:        getFirmwareEndpoint,
		CheckUpdateEndpoint:        checkUpdateEndpoint,
		GetCertificateEndpoint:     getCertificateEndpoint,
		RequestCertificateEndpoint: requestCertificateEndpoint,
		GetCRLEndpoint:             getCRLEndpoint,
	}
}

func MakeHealthEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		healthy := s.Health(ctx)
		return healthResponse{Healthy: healthy}, nil
	}
}

func MakeGetConfigEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(deviceFileRequest)
		data, err := s.GetConfig(ctx, req.DeviceID, req.Version)
		return signedFileResponse{DeviceID: req.DeviceID, Data: data, ContentType: "application/json", Err: err}, nil
	}
}

func MakeGetFirmwareEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(deviceFileRequest)
		data, err := s.GetFirmware(ctx, req.DeviceID, req.Version)
		return signedFileResponse{DeviceID: req.DeviceID, Data: data, ContentType: "application/octet-stream", Err: err}, nil
	}
}

func MakeCheckUpdateEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(deviceFileRequest)
		next, err := s.CheckUpdate(ctx, req.DeviceID, req.Version)
		return checkUpdateResponse{Next: next, Err: err}, nil
	}
}

func MakeGetCertificateEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(deviceFileRequest)
		data, err := s.GetCertificate(ctx, req.DeviceID)
		return signedFileResponse{DeviceID: req.DeviceID, Data: data, ContentType: "application/x-pem-file", Err: err}, nil
	}
}

func MakeRequestCertificateEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(postCSRRequest)
		data, err := s.RequestCertificate(ctx, req.DeviceID, req.CSR)
		return signedFileResponse{DeviceID: req.DeviceID, Data: data, ContentType: "application/x-pem-file", Err: err}, nil
	}
}

func MakeGetCRLEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		data, err := s.GetCRL(ctx)
		return fileResponse{Data: data, ContentType: "application/x-pem-file", Err: err}, nil
	}
}

type healthRequest struct{}

type healthResponse struct {
	Healthy bool  `json:"healthy,omitempty"`
	Err     error `json:"err,omitempty"`
}

type deviceFileRequest struct {
	DeviceID string
	Version  string
}

type postCSRRequest struct {
	DeviceID string
	CSR      []byte
}

type getCRLRequest struct{}

type fileResponse struct {
	Data        []byte
	ContentType string
	Err         error
}

func (r fileResponse) error() error { return r.Err }

// signedFileResponse is signed with the secret of DeviceID before it is written.
type signedFileResponse struct {
	DeviceID    string
	Data        []byte
	ContentType string
	Err         error
}

func (r signedFileResponse) error() error { return r.Err }

type checkUpdateResponse struct {
	Next string
	Err  error
}

func (r checkUpdateResponse) error() error { return r.Err }
