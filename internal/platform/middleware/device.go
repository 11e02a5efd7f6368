package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type deviceInfoKey struct{}

// ContextKeyDeviceInfo is exported for tests that build contexts directly.
var ContextKeyDeviceInfo = deviceInfoKey{}

// DeviceInfo is the parsed client device summary recorded in audit payloads.
// Compliance review of an enrollment needs to know what kind of client
// performed each action, not the raw User-Agent string.
type DeviceInfo struct {
	Browser  string
	OS       string
	Mobile   bool
	Bot      bool
	ClientIP string
}

// Device parses the User-Agent header once per request and stashes the
// summary in context for audit emission.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())
		name, version := ua.Browser()

		info := DeviceInfo{
			Browser:  name + " " + version,
			OS:       ua.OS(),
			Mobile:   ua.Mobile(),
			Bot:      ua.Bot(),
			ClientIP: clientIP(r),
		}
		ctx := context.WithValue(r.Context(), ContextKeyDeviceInfo, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDeviceInfo retrieves the device summary from the context.
func GetDeviceInfo(ctx context.Context) DeviceInfo {
	if info, ok := ctx.Value(ContextKeyDeviceInfo).(DeviceInfo); ok {
		return info
	}
	return DeviceInfo{}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
