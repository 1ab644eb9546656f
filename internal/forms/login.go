package forms

import (
	"net/url"
	"strings"
)

type loginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// LoginInput is a validated sign-in submission.
type LoginInput struct {
	Username string
	Password string
}

// Login validates a sign-in submission. It does not check the credentials.
func (v *Validator) Login(submitted url.Values) (LoginInput, Errors) {
	form := loginForm{
		Username: strings.TrimSpace(submitted.Get("username")),
		Password: submitted.Get("password"),
	}
	if errs := v.check(form); errs.Any() {
		return LoginInput{}, errs
	}
	return LoginInput{Username: form.Username, Password: form.Password}, Errors{}
}
