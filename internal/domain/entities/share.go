package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// ShareTokenPrefix tags every derived share token
	ShareTokenPrefix = "fk-"
	// shareTokenHashLength is the number of hex characters kept from the digest
	shareTokenHashLength = 16
	// Unlimited marks a usage limit or expiry that is not enforced
	Unlimited int64 = -1
)

// ShareLimits holds the per-model usage limits attached to a share
type ShareLimits struct {
	GPT4         int64
	GPT4o        int64
	GPT4oMini    int64
	GPTo1Mini    int64
	GPTo1Preview int64
}

// DefaultShareLimits returns limits with every model unlimited
func DefaultShareLimits() ShareLimits {
	return ShareLimits{
		GPT4:         Unlimited,
		GPT4o:        Unlimited,
		GPT4oMini:    Unlimited,
		GPTo1Mini:    Unlimited,
		GPTo1Preview: Unlimited,
	}
}

// ShareFlags holds the feature switches attached to a share
type ShareFlags struct {
	LimitEnabled            bool
	TempConversationEnabled bool
}

// Share grants a named user access to the mirror through a single upstream credential
type Share struct {
	token       string
	userName    string
	accessToken string
	limits      ShareLimits
	flags       ShareFlags
	expireAt    int64
}

// NewShare creates a share for the given user and derives its token
func NewShare(userName, accessToken string) (*Share, error) {
	if userName == "" {
		return nil, errors.New("user name is required")
	}
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	return &Share{
		token:       GenerateShareToken(accessToken, userName),
		userName:    userName,
		accessToken: accessToken,
		limits:      DefaultShareLimits(),
		expireAt:    Unlimited,
	}, nil
}

// NewShareWithToken restores a share loaded from storage
func NewShareWithToken(token, userName, accessToken string, limits ShareLimits, flags ShareFlags, expireAt int64) *Share {
	return &Share{
		token:       token,
		userName:    userName,
		accessToken: accessToken,
		limits:      limits,
		flags:       flags,
		expireAt:    expireAt,
	}
}

// GenerateShareToken derives the share token for a credential and user name.
// The same pair always yields the same token.
func GenerateShareToken(accessToken, userName string) string {
	sum := sha256.Sum256([]byte(accessToken + userName))
	return ShareTokenPrefix + hex.EncodeToString(sum[:])[:shareTokenHashLength]
}

// Token returns the share token
func (s *Share) Token() string {
	return s.token
}

// UserName returns the user the share was issued to
func (s *Share) UserName() string {
	return s.userName
}

// AccessToken returns the upstream credential behind the share
func (s *Share) AccessToken() string {
	return s.accessToken
}

// Limits returns the usage limits
func (s *Share) Limits() ShareLimits {
	return s.limits
}

// SetLimits replaces the usage limits
func (s *Share) SetLimits(limits ShareLimits) {
	s.limits = limits
}

// Flags returns the feature switches
func (s *Share) Flags() ShareFlags {
	return s.flags
}

// SetFlags replaces the feature switches
func (s *Share) SetFlags(flags ShareFlags) {
	s.flags = flags
}

// ExpireAt returns the expiry as unix seconds, or Unlimited
func (s *Share) ExpireAt() int64 {
	return s.expireAt
}

// SetExpireAt sets the expiry as unix seconds; zero or negative disables expiry
func (s *Share) SetExpireAt(expireAt int64) {
	if expireAt <= 0 {
		expireAt = Unlimited
	}
	s.expireAt = expireAt
}

// IsExpired reports whether the share has passed its expiry at the given time
func (s *Share) IsExpired(now time.Time) bool {
	if s.expireAt <= 0 {
		return false
	}
	return now.Unix() >= s.expireAt
}
