package donorstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

var (
	// ErrNotFound is returned when the referenced donor does not exist.
	ErrNotFound = errors.New("donor not found")
	// ErrDuplicateEmail is returned when another donor already uses the email
	// (compared case-insensitively).
	ErrDuplicateEmail = errors.New("a donor with this email already exists")
	// ErrMalformed is returned when a stored document fails validation on read.
	ErrMalformed = errors.New("malformed donor document")
)

// Stamp carries the audit fields written with every mutation.
type Stamp struct {
	At time.Time
	By string
}

// SearchField names a folded field that supports prefix-range search.
type SearchField string

const (
	FieldFullName SearchField = "full_name_ci"
	FieldEmail    SearchField = "email_ci"
)

// key folds term the way the field's stored value was folded: names drop
// case and diacritics, emails only case.
func (f SearchField) key(term string) string {
	if f == FieldEmail {
		return normalize.Email(term)
	}
	return text.Fold(term)
}

// CountFilter narrows Count. Zero values mean "any".
type CountFilter struct {
	Active    *bool
	DonorType models.DonorType
}

// prepare fills the derived folded fields before a write.
func prepare(d *models.Donor) {
	d.FullNameCI = normalize.NameCI(d.FullName)
	d.EmailCI = normalize.Email(d.Email)
}

// checkRecord is the single validation step applied to every document read
// from (or written to) the store.
func checkRecord(d models.Donor) error {
	bad := func(reason string) error {
		return fmt.Errorf("%w: %s: %s", ErrMalformed, d.ID.Hex(), reason)
	}
	switch {
	case d.ID.IsZero():
		return bad("missing _id")
	case d.FullName == "":
		return bad("missing full_name")
	case d.EmailCI == "":
		return bad("missing email")
	case !d.DonorType.Valid():
		return bad(fmt.Sprintf("unknown donor_type %q", d.DonorType))
	case len(d.CommunicationPreferences) == 0:
		return bad("no communication_preferences")
	case d.CreatedAt.IsZero():
		return bad("missing created_at")
	case d.CreatedBy == "":
		return bad("missing created_by")
	}
	for _, p := range d.CommunicationPreferences {
		if !p.Valid() {
			return bad(fmt.Sprintf("unknown communication preference %q", p))
		}
	}
	return nil
}

func (f CountFilter) matches(d models.Donor) bool {
	if f.Active != nil && d.IsActive != *f.Active {
		return false
	}
	if f.DonorType != "" && d.DonorType != f.DonorType {
		return false
	}
	return true
}

// applyPatch writes the non-nil patch fields onto d.
func applyPatch(d *models.Donor, p models.DonorPatch, st Stamp) {
	if p.FullName != nil {
		d.FullName = *p.FullName
	}
	if p.Email != nil {
		d.Email = *p.Email
	}
	if p.PhoneNumber != nil {
		d.PhoneNumber = *p.PhoneNumber
	}
	if p.Address != nil {
		d.Address = *p.Address
	}
	if p.DonorType != nil {
		d.DonorType = *p.DonorType
	}
	if p.CommunicationPreferences != nil {
		d.CommunicationPreferences = append([]models.CommunicationPreference(nil), (*p.CommunicationPreferences)...)
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	stamp(d, st)
	prepare(d)
}

func stamp(d *models.Donor, st Stamp) {
	at := st.At
	d.UpdatedAt = &at
	d.UpdatedBy = st.By
}
