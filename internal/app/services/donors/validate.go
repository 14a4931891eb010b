package donorsvc

import (
	"strings"

	"github.com/dalemusser/donorhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/donorhub/internal/app/system/inputval"
	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
)

// Field names as they appear in request bodies and ValidationError.
const (
	FieldFullName    = "full_name"
	FieldEmail       = "email"
	FieldPhoneNumber = "phone_number"
	FieldAddress     = "address"
	FieldDonorType   = "donor_type"
	FieldPreferences = "communication_preferences"
	FieldNotes       = "notes"
)

const maxNotesLen = 5000

type checker struct {
	fields map[string]string
}

func (c *checker) fail(field, msg string) {
	if c.fields == nil {
		c.fields = map[string]string{}
	}
	if _, dup := c.fields[field]; !dup {
		c.fields[field] = msg
	}
}

func (c *checker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: c.fields}
}

func (c *checker) fullName(s string) string {
	s = normalize.Name(s)
	if s == "" {
		c.fail(FieldFullName, "Full name is required.")
	}
	return s
}

func (c *checker) email(s string) string {
	s = strings.TrimSpace(s)
	if !inputval.IsValidEmail(s) {
		c.fail(FieldEmail, "Enter a valid email address.")
	}
	return s
}

func (c *checker) phone(s string) string {
	e164, ok := inputval.NormalizePhone(s, inputval.DefaultPhoneRegion)
	if !ok {
		c.fail(FieldPhoneNumber, "Enter a valid phone number.")
	}
	return e164
}

func (c *checker) address(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		c.fail(FieldAddress, "Address is required.")
	}
	return s
}

func (c *checker) donorType(t models.DonorType) models.DonorType {
	t = models.DonorType(strings.ToLower(strings.TrimSpace(string(t))))
	if !t.Valid() {
		c.fail(FieldDonorType, "Choose a donor type (general or sponsorship).")
	}
	return t
}

// preferences lower-cases and de-duplicates, keeping first-seen order.
func (c *checker) preferences(in []models.CommunicationPreference) []models.CommunicationPreference {
	out := make([]models.CommunicationPreference, 0, len(in))
	seen := map[models.CommunicationPreference]bool{}
	for _, p := range in {
		p = models.CommunicationPreference(strings.ToLower(strings.TrimSpace(string(p))))
		if !p.Valid() {
			c.fail(FieldPreferences, "Unknown communication preference \""+string(p)+"\".")
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(in) == 0 {
		c.fail(FieldPreferences, "Choose at least one communication preference.")
	}
	return out
}

func (c *checker) notes(s string) string {
	s = htmlsanitize.PlainText(s)
	if len([]rune(s)) > maxNotesLen {
		c.fail(FieldNotes, "Notes are too long.")
	}
	return s
}

// validateForm checks every field and returns the cleaned form.
func validateForm(f models.DonorForm) (models.DonorForm, error) {
	var c checker
	out := models.DonorForm{
		FullName:                 c.fullName(f.FullName),
		Email:                    c.email(f.Email),
		PhoneNumber:              c.phone(f.PhoneNumber),
		Address:                  c.address(f.Address),
		DonorType:                c.donorType(f.DonorType),
		CommunicationPreferences: c.preferences(f.CommunicationPreferences),
		Notes:                    c.notes(f.Notes),
	}
	return out, c.err()
}

// validatePatch checks only the fields present and returns the cleaned patch.
func validatePatch(p models.DonorPatch) (models.DonorPatch, error) {
	var c checker
	var out models.DonorPatch
	if p.FullName != nil {
		v := c.fullName(*p.FullName)
		out.FullName = &v
	}
	if p.Email != nil {
		v := c.email(*p.Email)
		out.Email = &v
	}
	if p.PhoneNumber != nil {
		v := c.phone(*p.PhoneNumber)
		out.PhoneNumber = &v
	}
	if p.Address != nil {
		v := c.address(*p.Address)
		out.Address = &v
	}
	if p.DonorType != nil {
		v := c.donorType(*p.DonorType)
		out.DonorType = &v
	}
	if p.CommunicationPreferences != nil {
		v := c.preferences(*p.CommunicationPreferences)
		out.CommunicationPreferences = &v
	}
	if p.Notes != nil {
		v := c.notes(*p.Notes)
		out.Notes = &v
	}
	return out, c.err()
}
