// Package forms validates submitted HTML forms. Every form is validated as a
// whole: callers receive either a fully typed payload or per-field errors,
// never a partially applied result.
package forms

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Errors holds validation messages keyed by form field name.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// Any reports whether at least one message was recorded.
func (e Errors) Any() bool {
	return len(e) > 0
}

// First returns the first message for field, or "".
func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Validator validates the application's forms.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
	policy   PasswordPolicy
}

// NewValidator constructs a Validator that checks passwords against policy.
func NewValidator(policy PasswordPolicy) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("integer", isInteger)
	_ = validate.RegisterValidation("username", isUsername)

	eng := en.New()
	uni := ut.New(eng, eng)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	registerTranslation(validate, trans, "integer", "{0} must be a whole number")
	registerTranslation(validate, trans, "username", "{0} may contain only letters, numbers, and @/./+/-/_ characters")
	registerTranslation(validate, trans, "eqfield", "The two password fields didn't match.")

	return &Validator{
		validate: validate,
		trans:    trans,
		policy:   policy,
	}
}

// Policy returns the password policy used for registrations.
func (v *Validator) Policy() PasswordPolicy {
	return v.policy
}

func (v *Validator) check(form any) Errors {
	errs := Errors{}
	err := v.validate.Struct(form)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add("__all__", err.Error())
		return errs
	}
	for _, fe := range verrs {
		errs.Add(baseField(fe.Field()), fe.Translate(v.trans))
	}
	return errs
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(tag, trans, func(t ut.Translator) error {
		return t.Add(tag, text, true)
	}, func(t ut.Translator, fe validator.FieldError) string {
		msg, err := t.T(tag, fe.Field())
		if err != nil {
			return fe.Error()
		}
		return msg
	})
}

// baseField strips the element index validator appends to slice fields.
func baseField(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}

func isInteger(fl validator.FieldLevel) bool {
	_, err := strconv.Atoi(fl.Field().String())
	return err == nil
}

func isUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}
