// Package invitelink issues invitation tokens, temporary credentials and the
// signed acceptance links mailed to invited musicians.
package invitelink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"time"
)

const (
	tokenBytes        = 32
	credentialLength  = 12
	credentialCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
)

// GenerateToken returns an unguessable URL-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCredential returns a temporary password without look-alike characters.
func GenerateCredential() (string, error) {
	max := big.NewInt(int64(len(credentialCharset)))
	out := make([]byte, credentialLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate credential: %w", err)
		}
		out[i] = credentialCharset[n.Int64()]
	}
	return string(out), nil
}

// Signer creates and validates signed acceptance links.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner constructs a signer for the given acceptance page.
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: baseURL}
}

// Link returns the acceptance URL embedding token, expiry and signature.
func (s *Signer) Link(token string, expiresAt time.Time) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token required")
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse accept url: %w", err)
	}
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	q := base.Query()
	q.Set("token", token)
	q.Set("exp", exp)
	q.Set("sig", s.sign(token, exp))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Verify checks a link's signature and expiry and returns the token.
func (s *Signer) Verify(token, exp, signature string, now time.Time) (string, error) {
	expected := s.sign(token, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", fmt.Errorf("invalid link signature")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid link expiry")
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("link expired")
	}
	return token, nil
}

func (s *Signer) sign(token, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(token + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
