package models

import (
	"fmt"
	"regexp"
)

var ticketIDPattern = regexp.MustCompile(`^[A-Z]-[0-9]{6,}$`)

// FormatTicketID renders a per-type sequence number, e.g. P-000042.
func FormatTicketID(t IssueType, seq int64) string {
	return fmt.Sprintf("%s-%06d", t.Prefix(), seq)
}

func ValidTicketID(s string) bool {
	return ticketIDPattern.MatchString(s)
}
