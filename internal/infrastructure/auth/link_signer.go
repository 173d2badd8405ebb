package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/orderbot/backend/internal/domain/channel"
)

// Link token layout: <random>.<mac>. Both halves are unpadded base64url.
// The MAC is truncated so a legacy "approve:<token>" callback stays well
// inside Telegram's 64 byte callback data limit.
const (
	linkRandomBytes = 12
	linkMACBytes    = 12
)

// ErrMalformedLinkToken is returned for tokens that fail the MAC check
var ErrMalformedLinkToken = errors.New("malformed confirmation link token")

// LinkSigner mints and checks confirmation link tokens. The MAC binds the
// token to a tenant and order so a forged or transplanted token is rejected
// before any database lookup.
type LinkSigner struct {
	secret []byte
}

// NewLinkSigner creates a signer. An empty secret is rejected by config
// validation in production.
func NewLinkSigner(secret string) *LinkSigner {
	return &LinkSigner{secret: []byte(secret)}
}

// Sign returns a fresh token for (tenantID, orderID)
func (s *LinkSigner) Sign(tenantID, orderID int64) (string, error) {
	random, err := channel.NewOpaqueToken(linkRandomBytes)
	if err != nil {
		return "", err
	}
	return random + "." + s.mac(tenantID, orderID, random), nil
}

// Verify checks the token's MAC against (tenantID, orderID)
func (s *LinkSigner) Verify(token string, tenantID, orderID int64) error {
	random, mac, ok := strings.Cut(token, ".")
	if !ok || random == "" || mac == "" {
		return ErrMalformedLinkToken
	}
	expected := s.mac(tenantID, orderID, random)
	if !hmac.Equal([]byte(mac), []byte(expected)) {
		return ErrMalformedLinkToken
	}
	return nil
}

// WellFormed reports whether token has the signed layout. It does not check
// the MAC; callers that do not know the tenant yet use it to skip obviously
// bogus tokens.
func (s *LinkSigner) WellFormed(token string) bool {
	random, mac, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	_, err1 := base64.RawURLEncoding.DecodeString(random)
	raw, err2 := base64.RawURLEncoding.DecodeString(mac)
	return err1 == nil && err2 == nil && len(raw) == linkMACBytes
}

func (s *LinkSigner) mac(tenantID, orderID int64, random string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(strconv.FormatInt(tenantID, 10)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(orderID, 10)))
	h.Write([]byte{':'})
	h.Write([]byte(random))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:linkMACBytes])
}
