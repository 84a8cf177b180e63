package tracking

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSigner(now time.Time) *Signer {
	s := NewSigner("s3cret", "redirect", 30*time.Second)
	s.now = func() time.Time { return now }
	return s
}

func TestSigner_RoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := fixedSigner(now)

	q := s.Query("link-1", time.Hour)
	assert.Equal(t, "redirect", q.Get(ParamAuthUser))
	assert.Equal(t, strconv.FormatInt(now.Add(time.Hour).Unix(), 10), q.Get(ParamValidUntil))
	assert.NoError(t, s.Verify(q, "link-1"))
}

func TestSigner_SignedURL(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	raw := s.SignedURL("https://t.example/", "link-1", time.Hour)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/redirect/link-1", u.Path)
	assert.Equal(t, "t.example", u.Host)
	assert.NoError(t, s.Verify(u.Query(), "link-1"))
}

func TestSigner_ExpiredEvenWithValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := fixedSigner(now)
	q := s.Query("link-1", -time.Minute)
	assert.ErrorIs(t, s.Verify(q, "link-1"), ErrExpired)
}

func TestSigner_ClockSkewTolerance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := fixedSigner(now)

	assert.NoError(t, s.Verify(s.Query("link-1", -29*time.Second), "link-1"))
	assert.ErrorIs(t, s.Verify(s.Query("link-1", -31*time.Second), "link-1"), ErrExpired)
}

func TestSigner_TamperedExtra(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	q := s.Query("link-1", time.Hour)
	q.Set(ParamExtra, "link-2")
	assert.ErrorIs(t, s.Verify(q, "link-2"), ErrBadSignature)
}

func TestSigner_TamperedValidUntil(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	q := s.Query("link-1", time.Hour)
	q.Set(ParamValidUntil, "9999999999")
	assert.ErrorIs(t, s.Verify(q, "link-1"), ErrBadSignature)

	q.Set(ParamValidUntil, "soon")
	assert.ErrorIs(t, s.Verify(q, "link-1"), ErrBadSignature)
}

func TestSigner_SignatureForOtherLink(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	q := s.Query("link-1", time.Hour)
	assert.ErrorIs(t, s.Verify(q, "link-2"), ErrLinkMismatch)
}

func TestSigner_WrongSecretOrAuthUser(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	other := NewSigner("different", "redirect", 0)
	other.now = func() time.Time { return now }
	assert.ErrorIs(t, fixedSigner(now).Verify(other.Query("link-1", time.Hour), "link-1"), ErrBadSignature)

	impostor := NewSigner("s3cret", "someone", 0)
	impostor.now = func() time.Time { return now }
	assert.ErrorIs(t, fixedSigner(now).Verify(impostor.Query("link-1", time.Hour), "link-1"), ErrBadSignature)
}

func TestSigner_MissingParams(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	for _, p := range []string{ParamAuthUser, ParamValidUntil, ParamExtra, ParamSignature} {
		q := s.Query("link-1", time.Hour)
		q.Del(p)
		err := s.Verify(q, "link-1")
		assert.ErrorIs(t, err, ErrMissingParam, p)
		assert.Contains(t, err.Error(), p)
	}
}

func TestSigner_AcceptsPaddedSignature(t *testing.T) {
	s := fixedSigner(time.Unix(1_700_000_000, 0))
	q := s.Query("link-1", time.Hour)
	q.Set(ParamSignature, q.Get(ParamSignature)+"=")
	assert.NoError(t, s.Verify(q, "link-1"))
}
