package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
)

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func NewInstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			requestCount:   counter,
			requestLatency: latency,
			next:           next,
		}
	}
}

func (mw *instrumentingMiddleware) observe(method string, err error, begin time.Time) {
	lvs := []string{"method", method, "error", fmt.Sprint(failed(err))}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Health(ctx context.Context) bool {
	defer func(begin time.Time) {
		mw.observe("Health", nil, begin)
	}(time.Now())

	return mw.next.Health(ctx)
}

func (mw *instrumentingMiddleware) GetConfig(ctx context.Context, deviceID string, version string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.observe("GetConfig", err, begin)
	}(time.Now())

	return mw.next.GetConfig(ctx, deviceID, version)
}

func (mw *instrumentingMiddleware) GetFirmware(ctx context.Context, deviceID string, version string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.observe("GetFirmware", err, begin)
	}(time.Now())

	return mw.next.GetFirmware(ctx, deviceID, version)
}

func (mw *instrumentingMiddleware) CheckUpdate(ctx context.Context, deviceID string, version string) (next string, err error) {
	defer func(begin time.Time) {
		mw.observe("CheckUpdate", err, begin)
	}(time.Now())

	return mw.next.CheckUpdate(ctx, deviceID, version)
}

func (mw *instrumentingMiddleware) GetCertificate(ctx context.Context, deviceID string) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.observe("GetCertificate", err, begin)
	}(time.Now())

	return mw.next.GetCertificate(ctx, deviceID)
}

func (mw *instrumentingMiddleware) RequestCertificate(ctx context.Context, deviceID string, csr []byte) (crt []byte, err error) {
	defer func(begin time.Time) {
		mw.observe("RequestCertificate", err, begin)
	}(time.Now())

	return mw.next.RequestCertificate(ctx, deviceID, csr)
}

func (mw *instrumentingMiddleware) GetCRL(ctx context.Context) (data []byte, err error) {
	defer func(begin time.Time) {
		mw.observe("GetCRL", err, begin)
	}(time.Now())

	return mw.next.GetCRL(ctx)
}
