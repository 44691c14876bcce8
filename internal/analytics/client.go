package analytics

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/nest/internal/geoip"
)

// ClientContext describes the device and location a request came from.
type ClientContext struct {
	DeviceType string
	Browser    string
	IsBot      bool
	Country    string
	Region     string
}

// DeviceTypeFromUA classifies a User-Agent string as desktop, mobile, tablet
// or other.
func DeviceTypeFromUA(ua string) (deviceType, browser string, isBot bool) {
	u := uasurfer.Parse(ua)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	default:
		deviceType = "other"
	}
	return deviceType, u.Browser.Name.String(), u.IsBot()
}

// ClientIP returns the first X-Forwarded-For hop, falling back to the peer
// address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ResolveClientContext builds the client context of r. g may be nil.
func ResolveClientContext(g *geoip.GeoIP, r *http.Request) ClientContext {
	var cc ClientContext
	cc.DeviceType, cc.Browser, cc.IsBot = DeviceTypeFromUA(r.UserAgent())
	cc.Country, cc.Region = g.Lookup(ClientIP(r))
	return cc
}

type clientKey struct{}

// WithClientContext attaches cc to ctx so service code can tag events with
// the originating client.
func WithClientContext(ctx context.Context, cc ClientContext) context.Context {
	return context.WithValue(ctx, clientKey{}, cc)
}

// ClientFromContext returns the client context stored in ctx, if any.
func ClientFromContext(ctx context.Context) ClientContext {
	cc, _ := ctx.Value(clientKey{}).(ClientContext)
	return cc
}
