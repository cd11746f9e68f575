package auth

import "context"

type contextKey int

const deviceContextKey contextKey = iota

func ContextWithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceContextKey, deviceID)
}

// DeviceFromContext returns the device id set by the authentication middleware.
func DeviceFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceContextKey).(string)
	return id, ok && id != ""
}
