package forms

import (
	"net/url"
	"strings"
)

type registrationForm struct {
	Username  string `form:"username" validate:"required,max=150,username"`
	Email     string `form:"email" validate:"required,max=254,email"`
	Password1 string `form:"password1" validate:"required"`
	Password2 string `form:"password2" validate:"required,eqfield=Password1"`
}

// RegistrationInput is a validated sign-up submission.
type RegistrationInput struct {
	Username string
	Email    string
	Password string
}

// Registration validates a sign-up submission. Password policy failures are
// reported on the confirmation field.
func (v *Validator) Registration(submitted url.Values) (RegistrationInput, Errors) {
	form := registrationForm{
		Username:  strings.TrimSpace(submitted.Get("username")),
		Email:     strings.TrimSpace(submitted.Get("email")),
		Password1: submitted.Get("password1"),
		Password2: submitted.Get("password2"),
	}

	errs := v.check(form)
	if _, bad := errs["password1"]; !bad {
		if _, bad := errs["password2"]; !bad {
			problems := v.policy.Check(form.Password1,
				UserAttribute{Label: "username", Value: form.Username},
				UserAttribute{Label: "email address", Value: form.Email},
			)
			for _, problem := range problems {
				errs.Add("password2", problem)
			}
		}
	}
	if errs.Any() {
		return RegistrationInput{}, errs
	}

	return RegistrationInput{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password1,
	}, Errors{}
}
