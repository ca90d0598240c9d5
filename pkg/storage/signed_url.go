package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenInvalid = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadToken is the verified content of a signed download link.
type DownloadToken struct {
	ExportID  string
	File      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token of the form id.expiry.file.signature.
func (s *SignedURLSigner) Sign(exportID, file string) (string, time.Time, error) {
	if exportID == "" || file == "" {
		return "", time.Time{}, fmt.Errorf("export id and file required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedFile := base64.RawURLEncoding.EncodeToString([]byte(file))
	token := strings.Join([]string{exportID, ts, encodedFile, s.mac(exportID, ts, encodedFile)}, ".")
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of a token.
func (s *SignedURLSigner) Verify(token string) (DownloadToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return DownloadToken{}, ErrTokenInvalid
	}
	exportID, ts, encodedFile, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(exportID, ts, encodedFile)), []byte(signature)) {
		return DownloadToken{}, ErrTokenInvalid
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return DownloadToken{}, ErrTokenInvalid
	}
	file, err := base64.RawURLEncoding.DecodeString(encodedFile)
	if err != nil {
		return DownloadToken{}, ErrTokenInvalid
	}

	out := DownloadToken{ExportID: exportID, File: string(file), ExpiresAt: time.Unix(expUnix, 0)}
	if s.now().After(out.ExpiresAt) {
		return out, ErrTokenExpired
	}
	return out, nil
}

func (s *SignedURLSigner) mac(parts ...string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
