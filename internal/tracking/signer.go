package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameters of a signed redirect URL.
const (
	ParamAuthUser   = "auth_user"
	ParamValidUntil = "valid_until"
	ParamExtra      = "extra"
	ParamSignature  = "signature"
)

var (
	ErrMissingParam = errors.New("missing signature parameter")
	ErrBadSignature = errors.New("signature mismatch")
	ErrExpired      = errors.New("signed url expired")
	ErrLinkMismatch = errors.New("signed url does not match link")
)

// Signer produces and checks signed redirect URLs. The signature is
// base64url(HMAC-SHA256(secret, auth_user|valid_until|extra)).
type Signer struct {
	secret   []byte
	authUser string
	skew     time.Duration
	now      func() time.Time
}

// NewSigner creates a signer. authUser is a fixed sentinel that is part of
// the signed payload; skew is how long past valid_until a URL is still
// accepted.
func NewSigner(secret, authUser string, skew time.Duration) *Signer {
	return &Signer{secret: []byte(secret), authUser: authUser, skew: skew, now: time.Now}
}

// Sign computes the signature over the three signed fields.
func (s *Signer) Sign(authUser string, validUntil int64, extra string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(authUser + "|" + strconv.FormatInt(validUntil, 10) + "|" + extra))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Query returns the four signed parameters for extra, valid for ttl.
func (s *Signer) Query(extra string, ttl time.Duration) url.Values {
	until := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set(ParamAuthUser, s.authUser)
	q.Set(ParamValidUntil, strconv.FormatInt(until, 10))
	q.Set(ParamExtra, extra)
	q.Set(ParamSignature, s.Sign(s.authUser, until, extra))
	return q
}

// SignedURL builds base/redirect/{id}?... with the link id as extra.
func (s *Signer) SignedURL(base, shortLinkID string, ttl time.Duration) string {
	return fmt.Sprintf("%s/redirect/%s?%s",
		strings.TrimRight(base, "/"), url.PathEscape(shortLinkID), s.Query(shortLinkID, ttl).Encode())
}

// Verify checks q against the link id taken from the request path.
func (s *Signer) Verify(q url.Values, shortLinkID string) error {
	for _, p := range []string{ParamAuthUser, ParamValidUntil, ParamExtra, ParamSignature} {
		if q.Get(p) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, p)
		}
	}
	authUser := q.Get(ParamAuthUser)
	extra := q.Get(ParamExtra)

	until, err := strconv.ParseInt(q.Get(ParamValidUntil), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: valid_until is not a unix timestamp", ErrBadSignature)
	}
	got, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(q.Get(ParamSignature), "="))
	if err != nil {
		return fmt.Errorf("%w: undecodable signature", ErrBadSignature)
	}
	want, _ := base64.RawURLEncoding.DecodeString(s.Sign(authUser, until, extra))
	if !hmac.Equal(got, want) {
		return ErrBadSignature
	}
	if authUser != s.authUser {
		return fmt.Errorf("%w: unexpected auth_user", ErrBadSignature)
	}
	if extra != shortLinkID {
		return ErrLinkMismatch
	}
	if s.now().After(time.Unix(until, 0).Add(s.skew)) {
		return ErrExpired
	}
	return nil
}
