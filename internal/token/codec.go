package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Kind discriminates the purpose a token was minted for. The kind is part of
// the signed payload, so a token issued for one endpoint cannot be replayed
// against another even if the identifier namespace were shared.
type Kind string

// KindSegment authorises resolution of a proxied media segment.
const KindSegment Kind = "segment"

// DefaultValidity is the window during which a minted token verifies.
const DefaultValidity = 10 * time.Minute

// Token is the stateless value embedded in signed local URLs. Validity is
// fully recomputable from its fields plus the server secret; nothing is
// stored.
type Token struct {
	ResourceID string
	Signature  string
	Exp        int64
}

// Query renders the token as the query parameters carried on the resolution path.
func (t Token) Query() url.Values {
	q := url.Values{}
	q.Set("resourceId", t.ResourceID)
	q.Set("sig", t.Signature)
	q.Set("exp", strconv.FormatInt(t.Exp, 10))
	return q
}

// Codec mints and verifies signed, expiring tokens bound to a resource
// identifier and a kind. Safe for concurrent use.
type Codec struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// Option customises the Codec.
type Option func(*Codec)

// WithValidity overrides the token validity window.
func WithValidity(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.validity = d
		}
	}
}

// WithNow overrides the clock used for expiry, primarily for testing.
func WithNow(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec constructs a Codec keyed with the server secret.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token: secret must not be empty")
	}

	codec := &Codec{
		secret:   secret,
		validity: DefaultValidity,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(codec)
	}

	return codec, nil
}

// Mint issues a token for the resource identifier that expires after the
// configured validity window.
func (c *Codec) Mint(resourceID string, kind Kind) Token {
	exp := c.now().Add(c.validity).Unix()
	return Token{
		ResourceID: resourceID,
		Signature:  c.sign(resourceID, exp, kind),
		Exp:        exp,
	}
}

// Verify reports whether the supplied token fields were signed by this codec
// and have not expired. A malformed exp fails verification rather than
// erroring. The expiry and signature checks are distinct internally, but
// callers must surface both failures identically.
func (c *Codec) Verify(resourceID, signature, exp string, kind Kind) bool {
	expSeconds, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false
	}
	if expSeconds < c.now().Unix() {
		return false
	}

	expected := c.sign(resourceID, expSeconds, kind)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Codec) sign(resourceID string, exp int64, kind Kind) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(resourceID))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	mac.Write([]byte(kind))
	return hex.EncodeToString(mac.Sum(nil))
}
