// Package token issues and verifies signed socket session tokens.
//
// A token is base64url(payload) "." base64url(HMAC-SHA256(payload)).
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
	ErrNoKey   = errors.New("token secret not configured")
)

type payload struct {
	SessionID string `json:"s"`
	UserID    string `json:"u"`
	Role      string `json:"r,omitempty"`
	TS        int64  `json:"t"`
}

// Claims are the verified contents of a session token.
type Claims struct {
	SessionID string
	UserID    string
	Role      string
	IssuedAt  time.Time
}

// Generate creates a signed session token for userID. Every call yields a
// distinct token.
func Generate(userID, role string, secret []byte) (string, error) {
	return generateAt(userID, role, secret, time.Now())
}

func generateAt(userID, role string, secret []byte, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoKey
	}
	if userID == "" {
		return "", errors.New("user id required")
	}
	data, err := json.Marshal(payload{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Role:      role,
		TS:        now.Unix(),
	})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sign(data, secret)), nil
}

func sign(data, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify checks the signature and, when ttl > 0, the token age.
func Verify(token string, secret []byte, ttl time.Duration) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrNoKey
	}
	encData, encSig, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(encSig, ".") {
		return Claims{}, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(encData)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	sig, err := enc.DecodeString(encSig)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	if !hmac.Equal(sign(data, secret), sig) {
		return Claims{}, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil || pl.UserID == "" {
		return Claims{}, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && time.Since(issued) > ttl {
		return Claims{}, ErrExpired
	}
	return Claims{SessionID: pl.SessionID, UserID: pl.UserID, Role: pl.Role, IssuedAt: issued}, nil
}
