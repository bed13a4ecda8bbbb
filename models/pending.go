package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PendingSubmission stages an anonymous report until its email code is confirmed.
type PendingSubmission struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	SessionToken string             `bson:"sessionToken"`
	// EmailKey is the normalized reporter email; one pending record per key.
	EmailKey  string            `bson:"emailKey"`
	Reporter  AnonymousReporter `bson:"reporter"`
	Details   IssueDetails      `bson:"details"`
	OtpHash   string            `bson:"otpHash"`
	ExpiresAt time.Time         `bson:"expiresAt"`
	CreatedAt time.Time         `bson:"createdAt"`
}

func (p *PendingSubmission) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// EmailKey normalizes an address for keyed lookups. Verification against a
// stored reporter email stays exact.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
