package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryChars bounds the length of an incoming question.
const MaxQueryChars = 8192

// AskRequest is the body of an ask call. The tenant is deliberately not part
// of the body: it arrives through the verified identity boundary and is
// passed as an explicit parameter everywhere below the HTTP layer.
type AskRequest struct {
	Query string `json:"query"`
}

// Validate trims the query and rejects empty or oversized input.
func (r *AskRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if utf8.RuneCountInString(r.Query) > MaxQueryChars {
		return fmt.Errorf("query exceeds %d characters", MaxQueryChars)
	}
	return nil
}
