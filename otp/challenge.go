package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// CodeLength is the number of decimal digits in a code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

type Purpose string

const (
	PurposeSignup          Purpose = "signup"
	PurposeAnonymousReport Purpose = "anon-report"
)

// ErrNotFound is returned by a CodeStore when no live record exists for a key.
var ErrNotFound = errors.New("otp: record not found")

type Record struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CodeStore keeps at most one record per key; Put replaces any previous record.
// Consume removes the record only while it still carries hash and reports
// whether this call was the one that removed it.
type CodeStore interface {
	Put(ctx context.Context, key string, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	Consume(ctx context.Context, key, hash string) (bool, error)
}

// Challenge issues and verifies numeric one-time codes.
type Challenge struct {
	hasher Hasher
	store  CodeStore
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Challenge)

func WithClock(now func() time.Time) Option {
	return func(c *Challenge) { c.now = now }
}

// NewChallenge builds a Challenge. store may be nil when only Mint/Match are used.
func NewChallenge(hasher Hasher, store CodeStore, opts ...Option) *Challenge {
	c := &Challenge{hasher: hasher, store: store, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateCode returns a uniformly random zero-padded code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// Mint creates a code and its hash without storing anything.
func (c *Challenge) Mint() (code, hash string, err error) {
	code, err = GenerateCode()
	if err != nil {
		return "", "", fmt.Errorf("generate code: %w", err)
	}
	hash, err = c.hasher.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash code: %w", err)
	}
	return code, hash, nil
}

func (c *Challenge) Match(hash, code string) bool {
	if hash == "" || code == "" {
		c.burn(code)
		return false
	}
	return c.hasher.Compare(hash, code)
}

// Issue stores a fresh code for key, superseding any earlier one, and returns the plaintext.
func (c *Challenge) Issue(ctx context.Context, purpose Purpose, key string, ttl time.Duration) (string, error) {
	code, hash, err := c.Mint()
	if err != nil {
		return "", err
	}
	rec := Record{Hash: hash, ExpiresAt: c.now().Add(ttl)}
	if err := c.store.Put(ctx, storeKey(purpose, key), rec); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify checks code against the live record for key and consumes it on success.
// Missing and expired records both yield false with a nil error, as does a
// correct code whose record was consumed or replaced by a concurrent call.
func (c *Challenge) Verify(ctx context.Context, purpose Purpose, key, code string) (bool, error) {
	k := storeKey(purpose, key)
	rec, err := c.store.Get(ctx, k)
	if errors.Is(err, ErrNotFound) {
		c.burn(code)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load code: %w", err)
	}
	if !c.now().Before(rec.ExpiresAt) {
		c.burn(code)
		_ = c.store.Delete(ctx, k)
		return false, nil
	}
	if !c.hasher.Compare(rec.Hash, code) {
		return false, nil
	}
	consumed, err := c.store.Consume(ctx, k, rec.Hash)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return consumed, nil
}

// burn spends roughly one comparison so absent records cost about as much as present ones.
func (c *Challenge) burn(code string) {
	c.dummyOnce.Do(func() {
		c.dummyHash, _ = c.hasher.Hash("000000")
	})
	if c.dummyHash != "" {
		c.hasher.Compare(c.dummyHash, code)
	}
}

func storeKey(purpose Purpose, key string) string {
	return string(purpose) + ":" + key
}
