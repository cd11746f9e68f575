package api

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger log.Logger
}

// failed reports whether err is a failure. ErrNoUpdate is a normal outcome.
func failed(err error) bool {
	return err != nil && !errors.Is(err, ErrNoUpdate)
}

func (mw loggingMiddleware) log(err error) log.Logger {
	if failed(err) {
		return level.Error(mw.logger)
	}
	return level.Info(mw.logger)
}

func (mw loggingMiddleware) Health(ctx context.Context) (healthy bool) {
	defer func(begin time.Time) {
		level.Debug(mw.logger).Log(
			"method", "Health",
			"took", time.Since(begin),
			"healthy", healthy,
			"trace_id", opentracing.SpanFromContext(ctx),
		)
	}(time.Now())
	return mw.next.Health(ctx)
}

func (mw loggingMiddleware) GetConfig(ctx context.Context, deviceID string, version string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "GetConfig",
			"device", deviceID,
			"version", version,
			"bytes", len(data),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetConfig(ctx, deviceID, version)
}

func (mw loggingMiddleware) GetFirmware(ctx context.Context, deviceID string, version string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "GetFirmware",
			"device", deviceID,
			"version", version,
			"bytes", len(data),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetFirmware(ctx, deviceID, version)
}

func (mw loggingMiddleware) CheckUpdate(ctx context.Context, deviceID string, version string) (next string, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "CheckUpdate",
			"device", deviceID,
			"version", version,
			"next", next,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.CheckUpdate(ctx, deviceID, version)
}

func (mw loggingMiddleware) GetCertificate(ctx context.Context, deviceID string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "GetCertificate",
			"device", deviceID,
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetCertificate(ctx, deviceID)
}

func (mw loggingMiddleware) RequestCertificate(ctx context.Context, deviceID string, csr []byte) (crt []byte, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "RequestCertificate",
			"device", deviceID,
			"csr_bytes", len(csr),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.RequestCertificate(ctx, deviceID, csr)
}

func (mw loggingMiddleware) GetCRL(ctx context.Context) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.log(err).Log(
			"method", "GetCRL",
			"bytes", len(data),
			"took", time.Since(begin),
			"trace_id", opentracing.SpanFromContext(ctx),
			"err", err,
		)
	}(time.Now())
	return mw.next.GetCRL(ctx)
}
