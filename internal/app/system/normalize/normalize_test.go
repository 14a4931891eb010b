package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "user@example.com"},
		{"USER@EXAMPLE.COM", "user@example.com"},
		{"  User@Example.Com  ", "user@example.com"},
		{"", ""},
		{"   ", ""},
		{"Mixed.Case@Domain.ORG", "mixed.case@domain.org"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Email(tt.input)
			if got != tt.want {
				t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Ahmed Benali", "Ahmed Benali"},
		{"  Ahmed Benali  ", "Ahmed Benali"},
		{"Ahmed   Benali", "Ahmed Benali"},
		{"", ""},
		{"   ", ""},
		{"UPPERCASE NAME", "UPPERCASE NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Name(tt.input)
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"admin", "admin"},
		{"ADMIN", "admin"},
		{"  Accountant  ", "accountant"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Role(tt.input)
			if got != tt.want {
				t.Errorf("Role(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQueryParam(t *testing.T) {
	if got := QueryParam("  Ahmed  "); got != "Ahmed" {
		t.Errorf("QueryParam = %q, want %q", got, "Ahmed")
	}
}

func TestNameCI(t *testing.T) {
	if NameCI("  Omar   TAZI ") != NameCI("omar tazi") {
		t.Errorf("NameCI should fold case and collapse whitespace: %q vs %q",
			NameCI("  Omar   TAZI "), NameCI("omar tazi"))
	}
	if NameCI("Omar Tazi") == NameCI("Omar Tazzi") {
		t.Errorf("distinct names folded to the same key")
	}
}
