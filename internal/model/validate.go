package model

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxUsernameLen is GitHub's login length limit.
const MaxUsernameLen = 39

// usernamePattern allows alphanumerics separated by single hyphens, never
// leading or trailing.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("github_username", func(fl validator.FieldLevel) bool {
			return IsValidUsername(fl.Field().String())
		})
	})
	return validate
}

// IsValidUsername reports whether s satisfies GitHub's login rules.
func IsValidUsername(s string) bool {
	return len(s) >= 1 && len(s) <= MaxUsernameLen && usernamePattern.MatchString(s)
}

// NormalizeUsername validates a GitHub username and lowercases it.
func NormalizeUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("username is required")
	}
	if len(s) > MaxUsernameLen {
		return "", fmt.Errorf("username must be at most %d characters", MaxUsernameLen)
	}
	if !usernamePattern.MatchString(s) {
		return "", fmt.Errorf("username must contain only alphanumeric characters or single hyphens, and cannot begin or end with a hyphen")
	}
	return strings.ToLower(s), nil
}

// ValidateStruct runs tag validation and flattens the first failure into a
// human-readable message.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", field)
	case "github_username":
		return fmt.Errorf("%s must contain only alphanumeric characters or single hyphens, and cannot begin or end with a hyphen", field)
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Errorf("%s must be at least %s characters", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
