package enums

import "fmt"

// Visibility controls whether a server is listed publicly or invite-only.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

var validVisibilities = []Visibility{
	VisibilityPublic,
	VisibilityPrivate,
}

// String implements fmt.Stringer.
func (v Visibility) String() string {
	return string(v)
}

// IsValid reports whether the value is a known Visibility.
func (v Visibility) IsValid() bool {
	for _, candidate := range validVisibilities {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVisibility converts raw input into a Visibility.
func ParseVisibility(value string) (Visibility, error) {
	for _, candidate := range validVisibilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid visibility %q", value)
}
