package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a one-time code into a salted digest and checks candidates against it.
type Hasher interface {
	Hash(code string) (string, error)
	Compare(hash, code string) bool
}

// BcryptHasher reuses the password hashing primitive.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(code string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// HMACHasher is a fast keyed alternative for short-lived codes.
// Digests have the form <hex salt>$<hex mac>.
type HMACHasher struct {
	Key []byte
}

func (h HMACHasher) Hash(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(h.mac(salt, code)), nil
}

func (h HMACHasher) Compare(hash, code string) bool {
	saltHex, macHex, ok := strings.Cut(hash, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(macHex)
	if err != nil {
		return false
	}
	return hmac.Equal(want, h.mac(salt, code))
}

func (h HMACHasher) mac(salt []byte, code string) []byte {
	m := hmac.New(sha256.New, h.Key)
	m.Write(salt)
	m.Write([]byte(code))
	return m.Sum(nil)
}
