// internal/domain/models/donor.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DonorType classifies a donor.
type DonorType string

const (
	DonorTypeGeneral     DonorType = "general"
	DonorTypeSponsorship DonorType = "sponsorship" // parrainage
)

// Valid reports whether t is a known donor type.
func (t DonorType) Valid() bool {
	switch t {
	case DonorTypeGeneral, DonorTypeSponsorship:
		return true
	}
	return false
}

// CommunicationPreference is a channel a donor accepts contact through.
type CommunicationPreference string

const (
	PrefEmail CommunicationPreference = "email"
	PrefSMS   CommunicationPreference = "sms"
	PrefPhone CommunicationPreference = "phone"
	PrefMail  CommunicationPreference = "mail"
	PrefNone  CommunicationPreference = "none"
)

// Valid reports whether p is a known communication preference.
func (p CommunicationPreference) Valid() bool {
	switch p {
	case PrefEmail, PrefSMS, PrefPhone, PrefMail, PrefNone:
		return true
	}
	return false
}

// Donor is a contributor record in the donors collection.
//
// FullNameCI and EmailCI are folded copies used for prefix search and
// case-insensitive email uniqueness (unique index on email_ci).
type Donor struct {
	ID                       primitive.ObjectID        `bson:"_id,omitempty" json:"id"`
	FullName                 string                    `bson:"full_name" json:"full_name"`
	FullNameCI               string                    `bson:"full_name_ci" json:"-"`
	Email                    string                    `bson:"email" json:"email"`
	EmailCI                  string                    `bson:"email_ci" json:"-"`
	PhoneNumber              string                    `bson:"phone_number" json:"phone_number"`
	Address                  string                    `bson:"address" json:"address"`
	DonorType                DonorType                 `bson:"donor_type" json:"donor_type"`
	CommunicationPreferences []CommunicationPreference `bson:"communication_preferences" json:"communication_preferences"`
	IsActive                 bool                      `bson:"is_active" json:"is_active"`
	Notes                    string                    `bson:"notes,omitempty" json:"notes,omitempty"`
	Documents                []DonorDocument           `bson:"documents,omitempty" json:"documents,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	CreatedBy string     `bson:"created_by" json:"created_by"`
	UpdatedBy string     `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
}

// DonorDocument is metadata for a file attached to a donor. The bytes live in
// object storage under Key.
type DonorDocument struct {
	ID          string    `bson:"id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Key         string    `bson:"key" json:"key"`
	ContentType string    `bson:"content_type" json:"content_type"`
	Size        int64     `bson:"size" json:"size"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
	UploadedBy  string    `bson:"uploaded_by" json:"uploaded_by"`
}

// DonorForm is the full set of user-editable donor fields, as submitted when
// creating a donor.
type DonorForm struct {
	FullName                 string                    `json:"full_name"`
	Email                    string                    `json:"email"`
	PhoneNumber              string                    `json:"phone_number"`
	Address                  string                    `json:"address"`
	DonorType                DonorType                 `json:"donor_type"`
	CommunicationPreferences []CommunicationPreference `json:"communication_preferences"`
	Notes                    string                    `json:"notes,omitempty"`
}

// DonorPatch is a partial update. Nil fields are left untouched.
type DonorPatch struct {
	FullName                 *string                    `json:"full_name,omitempty"`
	Email                    *string                    `json:"email,omitempty"`
	PhoneNumber              *string                    `json:"phone_number,omitempty"`
	Address                  *string                    `json:"address,omitempty"`
	DonorType                *DonorType                 `json:"donor_type,omitempty"`
	CommunicationPreferences *[]CommunicationPreference `json:"communication_preferences,omitempty"`
	Notes                    *string                    `json:"notes,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p DonorPatch) Empty() bool {
	return p.FullName == nil && p.Email == nil && p.PhoneNumber == nil &&
		p.Address == nil && p.DonorType == nil && p.CommunicationPreferences == nil &&
		p.Notes == nil
}
