package authz

import (
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
)

// NormalizeIdentity lower-cases and validates an account identity (an email
// address).
func NormalizeIdentity(raw string) (string, error) {
	identity := strings.ToLower(strings.TrimSpace(raw))
	if identity == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !govalidator.IsEmail(identity) {
		return "", fmt.Errorf("%w: %q is not a valid email", ErrInvalidInput, raw)
	}
	return identity, nil
}

// ValidateAppID checks an application identifier. App ids become path
// segments in store queries, so dots and a leading '$' are refused.
func ValidateAppID(raw string) (string, error) {
	return validateName("app_id", raw)
}

// ValidateKey checks a key used to filter accounts.
func ValidateKey(raw string) (string, error) {
	return validateName("key", raw)
}

// ValidateRoleName checks a role name.
func ValidateRoleName(raw string) (string, error) {
	return validateName("role", raw)
}

func validateName(field, raw string) (string, error) {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	case IsReserved(name):
		return "", fmt.Errorf("%w: %s %q is reserved", ErrInvalidInput, field, name)
	case strings.Contains(name, "."), strings.HasPrefix(name, "$"):
		return "", fmt.Errorf("%w: %s %q contains forbidden characters", ErrInvalidInput, field, name)
	}
	return name, nil
}
