package proxy

import (
	"net/http"
	"strings"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

const (
	shareTokenCookie = "share_token"
	// challengeCookie is bound to the client that solved the challenge and is never replayed
	challengeCookie = "__cf_bm"
	// upstreamAcceptEncoding lists the encodings the transcoder can decode
	upstreamAcceptEncoding = "gzip, br"
)

// IgnoredRequestHeaders are never copied from the inbound request to the upstream.
// They describe the client's hop, carry the client's own credentials, or are
// recomputed for the upstream request.
var IgnoredRequestHeaders = []string{
	"cf-warp-tag-id",
	"cf-visitor",
	"cf-ray",
	"cf-request-id",
	"cf-worker",
	"cf-access-client-id",
	"cf-access-client-device-type",
	"cf-access-client-device-model",
	"cf-access-client-device-name",
	"cf-access-client-device-brand",
	"cf-connecting-ip",
	"cf-ipcountry",
	"x-real-ip",
	"x-forwarded-for",
	"x-forwarded-proto",
	"x-forwarded-port",
	"x-forwarded-host",
	"x-forwarded-server",
	"x-forwarded-uri",
	"x-forwarded-path",
	"x-forwarded-method",
	"x-forwarded-protocol",
	"x-forwarded-scheme",
	"cdn-loop",
	"remote-host",
	"x-frame-options",
	"x-xss-protection",
	"x-content-type-options",
	"content-security-policy",
	"host",
	"cookie",
	"connection",
	"content-length",
	"content-encoding",
	"x-middleware-prefetch",
	"x-nextjs-data",
	"authorization",
	"referer",
	"origin",
	// hop-by-hop
	"keep-alive",
	"proxy-authorization",
	"proxy-connection",
	"te",
	"trailer",
	"transfer-encoding",
	"upgrade",
}

// ResponseHeaders is the reduced header set returned for buffered responses
var ResponseHeaders = []string{"Content-Type", "Cache-Control", "Expires"}

// StreamResponseHeaders is the header set returned for streamed responses
var StreamResponseHeaders = []string{"Content-Type", "Content-Encoding"}

// HeaderFilter drops a fixed set of header names, case-insensitively
type HeaderFilter struct {
	dropped map[string]struct{}
}

// NewHeaderFilter creates a filter dropping the given header names
func NewHeaderFilter(names ...string) HeaderFilter {
	dropped := make(map[string]struct{}, len(names))
	for _, name := range names {
		dropped[http.CanonicalHeaderKey(strings.TrimSpace(name))] = struct{}{}
	}
	return HeaderFilter{dropped: dropped}
}

// Drops reports whether the filter removes the named header
func (f HeaderFilter) Drops(name string) bool {
	_, ok := f.dropped[http.CanonicalHeaderKey(name)]
	return ok
}

// CopyInto copies every header of src the filter does not drop into dst
func (f HeaderFilter) CopyInto(dst, src http.Header) {
	for name, values := range src {
		if f.Drops(name) {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// copySelected copies only the named headers from src into dst
func copySelected(dst, src http.Header, names []string) {
	for _, name := range names {
		if values := src.Values(name); len(values) > 0 {
			dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
}

// buildCookieHeader returns the Cookie header sent upstream: the caller's
// share token followed by the registered upstream cookies.
func buildCookieHeader(shareToken string, upstream *entities.UpstreamCookies) string {
	var parts []string
	if shareToken != "" {
		parts = append(parts, shareTokenCookie+"="+shareToken)
	}
	if upstream != nil {
		for _, cookie := range upstream.Without(challengeCookie) {
			if cookie.Name == "" {
				continue
			}
			parts = append(parts, cookie.Name+"="+cookie.Value)
		}
	}
	return strings.Join(parts, "; ")
}
