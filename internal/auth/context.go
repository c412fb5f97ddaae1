package auth

import "context"

type deviceKey struct{}

// Device is a paired client, identified by the subject of its token.
type Device struct {
	ID   string
	Name string
}

// WithDevice attaches the authenticated device to ctx.
func WithDevice(ctx context.Context, device Device) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

// DeviceFromContext returns the device set by the middleware, if any.
func DeviceFromContext(ctx context.Context) (Device, bool) {
	device, ok := ctx.Value(deviceKey{}).(Device)
	return device, ok
}
