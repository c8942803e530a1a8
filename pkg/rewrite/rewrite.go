// Package rewrite adapts upstream response bodies for clients of the mirror:
// upstream origins are replaced by the mirror's own, account details are
// redacted, and conversations a user does not own are hidden in listings.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind classifies a response body by how it is rewritten
type Kind int

const (
	// KindNone bodies are passed through unchanged
	KindNone Kind = iota
	// KindAccount is the account information document
	KindAccount
	// KindConversationList is a page of the conversation listing
	KindConversationList
	// KindTextAsset is a script or stylesheet
	KindTextAsset
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindConversationList:
		return "conversation_list"
	case KindTextAsset:
		return "text_asset"
	default:
		return "none"
	}
}

const (
	accountPath            = "/backend-api/me"
	conversationListPrefix = "/backend-api/conversations"
)

var (
	// ErrMalformedBody is returned when a body that should be rewritten cannot be parsed
	ErrMalformedBody = errors.New("malformed response body")
	// ErrNotText is returned when a text asset is not valid UTF-8
	ErrNotText = errors.New("response body is not UTF-8 text")
)

// ConversationLister lists the conversations a user owns
type ConversationLister interface {
	Conversations(ctx context.Context, userName string) ([]string, error)
}

// Options configures the rewriter
type Options struct {
	PrimaryHost string
	ABHost      string
	AssetHost   string

	PlaceholderName  string
	PlaceholderEmail string
	LockedTitle      string
}

// Scope carries the request-specific inputs of a rewrite
type Scope struct {
	// UserName is the acting share user; empty for callers holding the upstream credential
	UserName string
	// PublicOrigin is the mirror's scheme and host as seen by the client
	PublicOrigin string
	// PublicHost is the mirror's host as seen by the client
	PublicHost string
}

// Rewriter rewrites response bodies
type Rewriter struct {
	opts   Options
	owners ConversationLister
}

// New creates a new Rewriter
func New(opts Options, owners ConversationLister) *Rewriter {
	return &Rewriter{
		opts:   opts,
		owners: owners,
	}
}

// KindOf returns how a response for the given upstream path is rewritten
func KindOf(path string) Kind {
	switch {
	case path == accountPath:
		return KindAccount
	case strings.HasPrefix(path, conversationListPrefix):
		return KindConversationList
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".css"):
		return KindTextAsset
	default:
		return KindNone
	}
}

// Rewrite returns the body to send to the client for a response of the
// upstream path. The returned body is always usable: when err is non-nil it
// is the unmodified input and err explains why no rewrite took place.
func (r *Rewriter) Rewrite(ctx context.Context, path string, body []byte, scope Scope) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}

	var (
		out []byte
		err error
	)
	switch KindOf(path) {
	case KindAccount:
		out, err = r.rewriteAccount(body)
	case KindConversationList:
		out, err = r.rewriteConversationList(ctx, body, scope)
	case KindTextAsset:
		out, err = r.rewriteTextAsset(body, scope)
	default:
		return body, nil
	}

	if err != nil {
		return body, err
	}
	return out, nil
}

// rewriteAccount replaces the account holder's personal details
func (r *Rewriter) rewriteAccount(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, ErrMalformedBody
	}

	out, err := sjson.SetBytes(body, "email", r.opts.PlaceholderEmail)
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "name", r.opts.PlaceholderName); err != nil {
		return nil, err
	}
	if out, err = sjson.SetBytes(out, "phone_number", nil); err != nil {
		return nil, err
	}

	orgs := gjson.GetBytes(out, "orgs.data")
	if !orgs.IsArray() {
		return out, nil
	}
	description := "Personal org for " + r.opts.PlaceholderEmail
	for i := range orgs.Array() {
		if out, err = sjson.SetBytes(out, fmt.Sprintf("orgs.data.%d.description", i), description); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rewriteConversationList hides the titles of conversations the user does not own
func (r *Rewriter) rewriteConversationList(ctx context.Context, body []byte, scope Scope) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedBody
	}
	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: no items array", ErrMalformedBody)
	}
	if scope.UserName == "" {
		return body, nil
	}

	owned := make(map[string]struct{})
	ids, err := r.owners.Conversations(ctx, scope.UserName)
	if err != nil {
		// An unreadable ownership set hides every title.
		log.Printf("[REWRITE] Failed to list conversations of %s: %v", scope.UserName, err)
	}
	for _, id := range ids {
		owned[entities.NormalizeConversationID(id)] = struct{}{}
	}

	out := body
	for i, item := range items.Array() {
		id := entities.NormalizeConversationID(item.Get("id").String())
		if _, ok := owned[id]; ok {
			continue
		}
		if out, err = sjson.SetBytes(out, fmt.Sprintf("items.%d.title", i), r.opts.LockedTitle); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rewriteTextAsset points every upstream origin in a script or stylesheet at the mirror
func (r *Rewriter) rewriteTextAsset(body []byte, scope Scope) ([]byte, error) {
	if !utf8.Valid(body) {
		return nil, ErrNotText
	}

	replacer := strings.NewReplacer(
		"https://"+r.opts.ABHost, scope.PublicOrigin+"/ab",
		"https://"+r.opts.PrimaryHost, scope.PublicOrigin,
		"https://"+r.opts.AssetHost, scope.PublicOrigin,
		r.opts.PrimaryHost, scope.PublicHost,
	)
	return []byte(replacer.Replace(string(body))), nil
}
