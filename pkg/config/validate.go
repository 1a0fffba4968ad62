package config

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sidkik/cacs/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their names in the config file.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// These only fail if the tag names are malformed.
	if err := v.RegisterValidation("itemname", validateItemName); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("repopath", validateRepoPath); err != nil {
		panic(err)
	}
	return v
}

// validateItemName checks that the name can be used as a file name.
func validateItemName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// validateRepoPath checks that the path stays within the repository.
func validateRepoPath(fl validator.FieldLevel) bool {
	p := strings.ReplaceAll(fl.Field().String(), `\`, "/")
	if path.IsAbs(p) {
		return false
	}

	clean := path.Clean(p)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../") &&
		clean != ".git" && !strings.HasPrefix(clean, ".git/")
}

// Validate checks cfg for missing or malformed fields.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.WithContext(err, "validate")
	}

	var msgs []string
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf(" - %s: %s", field, getErrorMessage(e)))
	}
	return errors.NewFriendlyError("The configuration file %q is invalid:\n%s",
		cfg.Path, strings.Join(msgs, "\n"))
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Must be at least %s", e.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.Replace(e.Param(), " ", ", ", -1))
	case "unique":
		return fmt.Sprintf("Each entry must have a unique %s", strings.ToLower(e.Param()))
	case "itemname":
		return "Must be usable as a file name"
	case "repopath":
		return "Must be a relative path inside the repository"
	default:
		return fmt.Sprintf("Failed validation on the '%s' tag", e.Tag())
	}
}
