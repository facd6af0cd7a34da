package profile

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"default", "work-2", "a", "under_score"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) error = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "UPPER", "has space", "dot.name", "sl/ash", string(make([]byte, 65))}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	if got := Resolve("explicit"); got != "explicit" {
		t.Errorf("Resolve(explicit) = %q, want explicit", got)
	}
}
