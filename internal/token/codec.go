// Package token reads the payload of access and refresh tokens without verifying them.
// The issuing service is the authority; values decoded here only drive refresh timing.
package token

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultExpiryBuffer is how long before expiry a token is treated as expired,
// so it is refreshed before the service can reject it mid-flight.
const DefaultExpiryBuffer = 60 * time.Second

// now is replaced in tests
var now = time.Now

// Payload is the subset of claims the client cares about
type Payload struct {
	SubjectID int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
	Type      string
}

// claims mirrors the service's token layout. user_id may be a number or a string.
type claims struct {
	UserID    json.RawMessage `json:"user_id"`
	TokenType string          `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Decode extracts the payload of a compact token. It returns false for anything
// that is not a three-segment token with a JSON payload; it never panics.
func Decode(raw string) (*Payload, bool) {
	if raw == "" {
		return nil, false
	}
	var c claims
	if _, _, err := new(jwt.Parser).ParseUnverified(raw, &c); err != nil {
		return nil, false
	}

	p := &Payload{ID: c.ID, Type: c.TokenType}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if id, ok := parseSubject(c.UserID); ok {
		p.SubjectID = id
	} else if id, err := strconv.ParseInt(c.Subject, 10, 64); err == nil {
		p.SubjectID = id
	}
	return p, true
}

func parseSubject(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(s)
	}
	id, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsExpired reports whether raw is undecodable, has no expiry, or expires within buffer
func IsExpired(raw string, buffer time.Duration) bool {
	p, ok := Decode(raw)
	if !ok || p.ExpiresAt.IsZero() {
		return true
	}
	return !now().Before(p.ExpiresAt.Add(-buffer))
}

// SubjectID returns the user id embedded in raw
func SubjectID(raw string) (int64, bool) {
	p, ok := Decode(raw)
	if !ok || p.SubjectID <= 0 {
		return 0, false
	}
	return p.SubjectID, true
}

// TimeToExpire returns the whole seconds left before expiry, floored at zero
func TimeToExpire(raw string) time.Duration {
	p, ok := Decode(raw)
	if !ok || p.ExpiresAt.IsZero() {
		return 0
	}
	left := p.ExpiresAt.Sub(now())
	if left <= 0 {
		return 0
	}
	return left.Truncate(time.Second)
}
