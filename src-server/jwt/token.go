package jwt

import "time"

// Payload of a calendar invite token. The token is handed to the invitee
// out of band; presenting it back proves the invite is genuine.
type Payload struct {
	CalendarID string `json:"cal"`
	InviteeID  string `json:"sub"`
	IssuedAt   int64  `json:"iat"`
}

// Expired reports whether the token is older than maxAge.
func (p *Payload) Expired(maxAge time.Duration) bool {
	return time.Unix(p.IssuedAt, 0).Add(maxAge).Before(time.Now())
}
