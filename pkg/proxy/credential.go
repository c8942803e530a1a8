package proxy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

const bearerPrefix = "Bearer "

// ErrUnauthorized is returned when a request carries no usable credential
var ErrUnauthorized = errors.New("unauthorized")

// ShareResolver looks up live shares by token
type ShareResolver interface {
	ResolveShare(ctx context.Context, token string) (*entities.Share, error)
}

// Credential is the upstream credential a request is forwarded with
type Credential struct {
	// AccessToken is sent upstream as a bearer token
	AccessToken string
	// UserName is the acting share user. It is empty when the caller
	// presented the upstream credential itself.
	UserName string
	// ShareToken is the share the credential was resolved from
	ShareToken string
}

// Restricted reports whether the caller only sees its own conversations
func (c Credential) Restricted() bool {
	return c.UserName != ""
}

// CredentialResolver turns inbound requests into upstream credentials
type CredentialResolver struct {
	shares           ShareResolver
	publicExtensions []string
}

// NewCredentialResolver creates a resolver. Paths ending in one of
// publicExtensions are forwarded without a credential.
func NewCredentialResolver(shares ShareResolver, publicExtensions []string) *CredentialResolver {
	return &CredentialResolver{
		shares:           shares,
		publicExtensions: publicExtensions,
	}
}

// RequiresAuth reports whether a credential must be resolved for path
func (r *CredentialResolver) RequiresAuth(path string) bool {
	return !hasExtension(path, r.publicExtensions)
}

// Resolve returns the credential of req. A bearer Authorization header is
// used as is; otherwise the share_token cookie must name a live share.
func (r *CredentialResolver) Resolve(ctx context.Context, req *http.Request) (Credential, error) {
	if auth := req.Header.Get("Authorization"); auth != "" {
		if !strings.HasPrefix(auth, bearerPrefix) {
			return Credential{}, ErrUnauthorized
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
		if token == "" {
			return Credential{}, ErrUnauthorized
		}
		cred := Credential{AccessToken: token}
		if cookie, err := req.Cookie(shareTokenCookie); err == nil {
			cred.ShareToken = cookie.Value
		}
		return cred, nil
	}

	cookie, err := req.Cookie(shareTokenCookie)
	if err != nil || cookie.Value == "" {
		return Credential{}, ErrUnauthorized
	}

	share, err := r.shares.ResolveShare(ctx, cookie.Value)
	if err != nil {
		return Credential{}, errors.Join(ErrUnauthorized, err)
	}
	return Credential{
		AccessToken: share.AccessToken(),
		UserName:    share.UserName(),
		ShareToken:  share.Token(),
	}, nil
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if ext != "" && strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
