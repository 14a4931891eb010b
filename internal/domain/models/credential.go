// internal/domain/models/credential.go
package models

import "time"

// Credential is the auth boundary's record of how a subject signs in. Its ID
// is the uid shared with the user profile.
type Credential struct {
	ID              string     `bson:"_id"`
	Email           string     `bson:"email"`
	EmailCI         string     `bson:"email_ci,omitempty"`
	Provider        string     `bson:"provider"` // password | google | facebook | twitter | apple
	ProviderSubject string     `bson:"provider_subject,omitempty"`
	PasswordHash    string     `bson:"password_hash,omitempty"`
	ResetTokenHash  string     `bson:"reset_token_hash,omitempty"`
	ResetExpiresAt  *time.Time `bson:"reset_expires_at,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       *time.Time `bson:"updated_at,omitempty"`
}

// ProviderPassword marks an email/password credential.
const ProviderPassword = "password"
