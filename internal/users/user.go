package users

import "time"

// User is the profile of a person who can own or share documents, mapped
// from Keycloak claims. Sub doubles as the owner id of the user's document
// record in the remote store.
type User struct {
	ID         string    `bson:"_id,omitempty" json:"id,omitempty"`
	Sub        string    `bson:"sub" json:"sub"`
	Email      string    `bson:"email" json:"email"`
	Name       string    `bson:"name" json:"name"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
	LastSeenAt time.Time `bson:"lastSeenAt" json:"lastSeenAt"`
}
