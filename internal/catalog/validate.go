package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a catalog that must not be used
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = newValidator()

// newValidator reports fields by their yaml names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints, then cross-entry constraints
func Validate(cat *Catalog) error {
	if err := validate.Struct(cat); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ValidationError{Field: fieldPath(fe.Namespace()), Message: fmt.Sprintf("failed %q rule", fe.Tag())}
		}
		return err
	}

	seen := make(map[string]bool, len(cat.Indicators))
	for i, ind := range cat.Indicators {
		if err := checkKey(ind.Key); err != "" {
			return ValidationError{fmt.Sprintf("indicators[%d].key", i), err}
		}
		if seen[ind.Key] {
			return ValidationError{fmt.Sprintf("indicators[%d].key", i), fmt.Sprintf("duplicate key %q", ind.Key)}
		}
		seen[ind.Key] = true

		names := make(map[string]bool, len(ind.Providers))
		for _, p := range ind.Providers {
			if names[p.Name] {
				return ValidationError{fmt.Sprintf("indicators[%d].providers", i), fmt.Sprintf("provider %q listed twice", p.Name)}
			}
			names[p.Name] = true
		}
	}

	codes := make(map[string]bool, len(cat.Instruments))
	for i, inst := range cat.Instruments {
		if codes[inst.Code] {
			return ValidationError{fmt.Sprintf("instruments[%d].code", i), fmt.Sprintf("duplicate code %q", inst.Code)}
		}
		codes[inst.Code] = true
	}

	if len(cat.Instruments) > 0 {
		if len(cat.QuoteProviders) == 0 {
			return ValidationError{"quote_providers", "required when instruments are tracked"}
		}
		if len(cat.HistoryProviders) == 0 {
			return ValidationError{"history_providers", "required when instruments are tracked"}
		}
	}

	return nil
}

// keyForbidden are characters a key cannot hold; keys name history files
const keyForbidden = `/\.`

func checkKey(key string) string {
	if strings.ContainsAny(key, keyForbidden) {
		return fmt.Sprintf("key %q must not contain any of %q", key, keyForbidden)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Sprintf("key %q must not contain whitespace", key)
		}
	}
	return ""
}

// RequireProviders fails when the catalog names a provider that has no implementation
func RequireProviders(cat *Catalog, indicator, quote, history func(name string) bool) error {
	for i, ind := range cat.Indicators {
		for _, p := range ind.Providers {
			if !indicator(p.Name) {
				return ValidationError{fmt.Sprintf("indicators[%d].providers", i), fmt.Sprintf("unknown indicator provider %q", p.Name)}
			}
		}
	}
	for _, name := range cat.QuoteProviders {
		if !quote(name) {
			return ValidationError{"quote_providers", fmt.Sprintf("unknown quote provider %q", name)}
		}
	}
	for _, name := range cat.HistoryProviders {
		if !history(name) {
			return ValidationError{"history_providers", fmt.Sprintf("unknown history provider %q", name)}
		}
	}
	return nil
}

// fieldPath turns "Catalog.indicators[0].key" into "indicators[0].key"
func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Catalog.")
}
