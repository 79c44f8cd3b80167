package sessions

import "time"

// Lease binds a gateway sync session to the user that opened it. The token is
// handed to the client and presented on every /sessions/:token call.
type Lease struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	Token     string    `bson:"token" json:"token"`
	Sub       string    `bson:"sub" json:"sub"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the lease is past its expiry at now.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
