// Package proxy forwards client requests to the mirrored application on
// behalf of share users and relays the responses back.
package proxy

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/pkg/config"
	"github.com/takutakahashi/chatgpt-mirror/pkg/metrics"
	"github.com/takutakahashi/chatgpt-mirror/pkg/rewrite"
	"github.com/takutakahashi/chatgpt-mirror/pkg/transcode"
	"github.com/takutakahashi/chatgpt-mirror/pkg/utils"
)

const (
	conversationResourcePrefix = "/backend-api/conversation/"
	upstreamCookieCacheKey     = "upstream"
	upstreamCookieTTL          = 5 * time.Second
)

// request kinds reported to metrics
const (
	kindBlocked      = "blocked"
	kindUnauthorized = "unauthorized"
	kindNotOwned     = "not_owned"
	kindError        = "error"
	kindStream       = "stream"
	kindRewrite      = "rewrite"
	kindPassthrough  = "passthrough"
)

// Registry is the state the proxy reads and records while forwarding
type Registry interface {
	ShareResolver
	rewrite.ConversationLister
	RecordConversation(ctx context.Context, userName, conversationID string) error
	UserOwns(ctx context.Context, userName, conversationID string) (bool, error)
	UpstreamCookies(ctx context.Context) (*entities.UpstreamCookies, error)
}

// Proxy represents the mirror's forwarding core
type Proxy struct {
	config      *config.Config
	registry    Registry
	router      OriginRouter
	credentials *CredentialResolver
	rewriter    *rewrite.Rewriter
	headers     HeaderFilter
	client      *http.Client
	metrics     *metrics.Collector
	cookies     *utils.TTLCache[*entities.UpstreamCookies]
	streamPaths map[string]struct{}
	verbose     bool
}

// NewProxy creates a new proxy instance
func NewProxy(cfg *config.Config, registry Registry, client *http.Client, collector *metrics.Collector, verbose bool) *Proxy {
	streamPaths := make(map[string]struct{}, len(cfg.Upstream.StreamPaths))
	for _, path := range cfg.Upstream.StreamPaths {
		streamPaths[path] = struct{}{}
	}

	return &Proxy{
		config:   cfg,
		registry: registry,
		router: OriginRouter{
			PrimaryHost: cfg.Upstream.PrimaryHost,
			ABHost:      cfg.Upstream.ABHost,
			AssetHost:   cfg.Upstream.AssetHost,
		},
		credentials: NewCredentialResolver(registry, cfg.Upstream.PublicExtensions),
		rewriter: rewrite.New(rewrite.Options{
			PrimaryHost:      cfg.Upstream.PrimaryHost,
			ABHost:           cfg.Upstream.ABHost,
			AssetHost:        cfg.Upstream.AssetHost,
			PlaceholderName:  cfg.Redaction.Name,
			PlaceholderEmail: cfg.Redaction.Email,
			LockedTitle:      cfg.Redaction.LockedTitle,
		}, registry),
		headers:     NewHeaderFilter(IgnoredRequestHeaders...),
		client:      client,
		metrics:     collector,
		cookies:     utils.NewTTLCache[*entities.UpstreamCookies](upstreamCookieTTL),
		streamPaths: streamPaths,
		verbose:     verbose,
	}
}

// RegisterRoutes sends every route not claimed by a local handler upstream
func (p *Proxy) RegisterRoutes(e *echo.Echo) {
	e.Any("/*", p.Handle)
}

// Handle forwards one request to the upstream
func (p *Proxy) Handle(c echo.Context) error {
	req := c.Request()
	path := req.URL.Path
	kind := kindPassthrough
	defer func() {
		p.metrics.RecordRequest(kind, c.Response().Status)
	}()

	if p.verbose {
		log.Printf("[PROXY] %s %s from %s", req.Method, path, c.RealIP())
	}

	if hasExtension(path, p.config.Upstream.BlockedExtensions) {
		kind = kindBlocked
		return c.NoContent(http.StatusMethodNotAllowed)
	}

	target := p.router.Resolve(path)

	var cred Credential
	if p.credentials.RequiresAuth(path) {
		var err error
		cred, err = p.credentials.Resolve(req.Context(), req)
		if err != nil {
			if p.verbose {
				log.Printf("[PROXY] Rejected %s %s: %v", req.Method, path, err)
			}
			kind = kindUnauthorized
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	if id, ok := conversationResourceID(path); ok && cred.Restricted() {
		owned, err := p.registry.UserOwns(req.Context(), cred.UserName, id)
		if err != nil {
			log.Printf("[PROXY] Failed to check ownership of conversation %s for %s: %v", id, cred.UserName, err)
		}
		if err != nil || !owned {
			kind = kindNotOwned
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	outReq, err := p.buildUpstreamRequest(req, target, cred)
	if err != nil {
		log.Printf("[PROXY] Failed to build upstream request for %s: %v", path, err)
		kind = kindError
		return c.String(http.StatusInternalServerError, err.Error())
	}

	start := time.Now()
	resp, err := p.client.Do(outReq)
	p.metrics.ObserveUpstream(target.Host, time.Since(start))
	if err != nil {
		log.Printf("[PROXY] Upstream request %s %s failed: %v", req.Method, outReq.URL, err)
		kind = kindError
		return c.String(http.StatusInternalServerError, err.Error())
	}
	defer utils.SafeCloseResponse(resp)

	if _, ok := p.streamPaths[path]; ok {
		kind = kindStream
		return p.relayStream(c, resp, cred)
	}

	if rewrite.KindOf(target.Path) != rewrite.KindNone {
		kind = kindRewrite
	}
	return p.respond(c, resp, target, cred)
}

// buildUpstreamRequest creates the outbound request for target
func (p *Proxy) buildUpstreamRequest(req *http.Request, target Target, cred Credential) (*http.Request, error) {
	targetURL := target.URL(req.URL.RawQuery)

	outReq, err := http.NewRequestWithContext(req.Context(), req.Method, targetURL, req.Body)
	if err != nil {
		return nil, err
	}
	outReq.ContentLength = req.ContentLength

	p.headers.CopyInto(outReq.Header, req.Header)
	outReq.Header.Set("Accept-Encoding", upstreamAcceptEncoding)
	outReq.Header.Set("Referer", targetURL)
	outReq.Header.Set("Origin", target.Origin())

	if cred.AccessToken == "" {
		return outReq, nil
	}
	outReq.Header.Set("Authorization", bearerPrefix+cred.AccessToken)

	upstream := p.upstreamCookies(req.Context())
	if cookie := buildCookieHeader(cred.ShareToken, upstream); cookie != "" {
		outReq.Header.Set("Cookie", cookie)
	}
	// Clearance cookies are only honoured together with the user agent and
	// egress address that obtained them.
	if upstream != nil && upstream.UserAgent != "" && upstream.ProxyURL == p.config.Mirror.Proxy {
		outReq.Header.Set("User-Agent", upstream.UserAgent)
	}
	return outReq, nil
}

// upstreamCookies returns the registered cookie set, cached briefly
func (p *Proxy) upstreamCookies(ctx context.Context) *entities.UpstreamCookies {
	if cookies, ok := p.cookies.Get(upstreamCookieCacheKey); ok {
		return cookies
	}
	cookies, err := p.registry.UpstreamCookies(ctx)
	if err != nil {
		log.Printf("[PROXY] Failed to load upstream cookies: %v", err)
		return nil
	}
	p.cookies.Set(upstreamCookieCacheKey, cookies)
	return cookies
}

// relayStream streams the upstream response to the client while watching
// the decoded events for newly created conversations
func (p *Proxy) relayStream(c echo.Context, resp *http.Response, cred Credential) error {
	ctx := c.Request().Context()

	copySelected(c.Response().Header(), resp.Header, StreamResponseHeaders)
	c.Response().WriteHeader(resp.StatusCode)

	enc, err := transcode.ParseEncoding(resp.Header.Get("Content-Encoding"))
	var detector *conversationDetector
	switch {
	case err != nil:
		log.Printf("[STREAM] Not inspecting stream: %v", err)
		enc = transcode.Identity
	case cred.Restricted():
		recordCtx := context.WithoutCancel(ctx)
		detector = newConversationDetector(func(id string) {
			p.recordConversation(recordCtx, cred.UserName, id)
		})
	}

	var sink io.Writer = io.Discard
	if detector != nil {
		sink = detector
	}

	result, err := transcode.Relay(ctx, c.Response(), resp.Body, enc, sink)
	p.metrics.AddStreamBytes(result.Written)
	if err != nil {
		if p.verbose || !errors.Is(err, context.Canceled) {
			log.Printf("[STREAM] Relay stopped after %d bytes: %v", result.Written, err)
		}
		return nil
	}

	if result.InspectErr != nil {
		log.Printf("[STREAM] Inspection abandoned: %v", result.InspectErr)
		p.metrics.RecordInspectionFailure()
		return nil
	}
	if detector != nil {
		_ = detector.Close()
	}
	return nil
}

func (p *Proxy) recordConversation(ctx context.Context, userName, conversationID string) {
	if err := p.registry.RecordConversation(ctx, userName, conversationID); err != nil {
		log.Printf("[STREAM] Failed to record conversation %s for %s: %v", conversationID, userName, err)
		return
	}
	p.metrics.RecordConversation()
	if p.verbose {
		log.Printf("[STREAM] Recorded conversation %s for %s", conversationID, userName)
	}
}

// respond returns a buffered upstream response, rewritten where needed
func (p *Proxy) respond(c echo.Context, resp *http.Response, target Target, cred Credential) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[PROXY] Failed to read upstream response for %s: %v", target.Path, err)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	h := c.Response().Header()
	copySelected(h, resp.Header, ResponseHeaders)

	contentEncoding := resp.Header.Get("Content-Encoding")
	enc, err := transcode.ParseEncoding(contentEncoding)
	if err == nil {
		var decoded []byte
		if decoded, err = transcode.Decode(body, enc); err == nil {
			body = decoded
		}
	}
	if err != nil {
		// The client gets the body as sent and decodes it itself.
		if p.verbose {
			log.Printf("[PROXY] Passing %s through undecoded: %v", target.Path, err)
		}
		h.Set("Content-Encoding", contentEncoding)
		c.Response().WriteHeader(resp.StatusCode)
		_, _ = c.Response().Write(body)
		return nil
	}

	if kind := rewrite.KindOf(target.Path); kind != rewrite.KindNone {
		body, err = p.rewriter.Rewrite(c.Request().Context(), target.Path, body, rewrite.Scope{
			UserName:     cred.UserName,
			PublicOrigin: c.Scheme() + "://" + c.Request().Host,
			PublicHost:   c.Request().Host,
		})
		if err != nil {
			if p.verbose {
				log.Printf("[PROXY] Returning %s unmodified: %v", target.Path, err)
			}
			p.metrics.RecordRewriteFallback(kind.String())
		}
	}

	c.Response().WriteHeader(resp.StatusCode)
	if _, err := c.Response().Write(body); err != nil && p.verbose {
		log.Printf("[PROXY] Failed to write response for %s: %v", target.Path, err)
	}
	return nil
}

// conversationResourceID returns the conversation a path operates on
func conversationResourceID(path string) (string, bool) {
	if !strings.HasPrefix(path, conversationResourcePrefix) || strings.Contains(path, "init") {
		return "", false
	}
	id, _, _ := strings.Cut(strings.TrimPrefix(path, conversationResourcePrefix), "/")
	return id, true
}
