package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Form validation messages.
const (
	msgCredentialsRequired = "Please enter your email and password."
	msgEmailRequired       = "Please enter your email."
	msgInvalidEmail        = "Please enter a valid email address."
	msgPasswordTooShort    = "Password must be at least 6 characters."
	msgInvalidForm         = "Invalid form data."
)

type credentialsForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type signUpForm struct {
	Email    string `form:"email" validate:"required,email,signup_domain"`
	Password string `form:"password" validate:"required"`
}

type emailForm struct {
	Email string `form:"email" validate:"required,email"`
}

type newPasswordForm struct {
	Password string `form:"password" validate:"required,min=6"`
}

type linkForm struct {
	Fragment string `form:"fragment" validate:"max=8192"`
}

// formValidator checks submitted forms. Sign-up addresses must belong to one
// of the allowed domains; an empty list allows any domain.
type formValidator struct {
	v       *validator.Validate
	domains []string
}

func newFormValidator(domains []string) *formValidator {
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, d)
		}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	fv := &formValidator{v: v, domains: allowed}
	mustRegisterValidation(v, "signup_domain", fv.allowedDomain)
	return fv
}

func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("handlers: register %q validation: %v", tag, err))
	}
}

func (fv *formValidator) allowedDomain(fl validator.FieldLevel) bool {
	if len(fv.domains) == 0 {
		return true
	}
	_, domain, ok := strings.Cut(fl.Field().String(), "@")
	if !ok {
		return false
	}
	domain = strings.ToLower(domain)
	for _, d := range fv.domains {
		if domain == d {
			return true
		}
	}
	return false
}

func (fv *formValidator) domainMessage() string {
	return fmt.Sprintf("Invalid email domain. Please use a %s email.", strings.Join(fv.domains, " or "))
}

// validate returns the message to show for the first failing rule, or "".
func (fv *formValidator) validate(form any) string {
	err := fv.v.Struct(form)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgInvalidForm
	}
	switch verrs[0].Tag() {
	case "required":
		switch form.(type) {
		case *newPasswordForm:
			return msgPasswordTooShort
		case *emailForm:
			return msgEmailRequired
		}
		return msgCredentialsRequired
	case "email":
		return msgInvalidEmail
	case "signup_domain":
		return fv.domainMessage()
	case "min":
		return msgPasswordTooShort
	default:
		return msgInvalidForm
	}
}

// decodeForm fills dst from the posted form values using its form tags.
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	values := make(map[string]any, len(r.PostForm))
	for key, v := range r.PostForm {
		if len(v) > 0 {
			values[key] = v[0]
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "form", Result: dst})
	if err != nil {
		return err
	}
	return dec.Decode(values)
}
