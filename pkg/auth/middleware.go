package auth

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
)

type routeOptions struct {
	requireVersion bool
}

type Option func(*routeOptions)

// RequireFirmwareVersion makes x-firmware-version a mandatory signed header.
func RequireFirmwareVersion() Option {
	return func(o *routeOptions) { o.requireVersion = true }
}

// Middleware guards authenticated routes. Public routes are registered without it.
func Middleware(v *Verifier, logger log.Logger, opts ...Option) mux.MiddlewareFunc {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, rejection := v.Authenticate(r, o.requireVersion)
			if rejection != nil {
				lvl := level.Warn
				if rejection.FallThrough {
					lvl = level.Debug
				}
				lvl(logger).Log(
					"msg", "Request authentication rejected",
					"kind", rejection.Kind.String(),
					"device", rejection.DeviceID,
					"path", r.URL.Path,
					"status", rejection.Status,
					"err", rejection.Err,
				)
				http.Error(w, http.StatusText(rejection.Status), rejection.Status)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDevice(r.Context(), deviceID)))
		})
	}
}
