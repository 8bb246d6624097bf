package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormValidatorMessages(t *testing.T) {
	fv := newFormValidator([]string{" Dickinson.edu ", "arawatabill.org", ""})

	tests := []struct {
		name string
		form any
		want string
	}{
		{name: "valid sign in", form: &credentialsForm{Email: "a@b.org", Password: "x"}, want: ""},
		{name: "missing password", form: &credentialsForm{Email: "a@b.org"}, want: msgCredentialsRequired},
		{name: "bad email", form: &credentialsForm{Email: "nope", Password: "x"}, want: msgInvalidEmail},
		{name: "allowed domain", form: &signUpForm{Email: "a@dickinson.edu", Password: "x"}, want: ""},
		{name: "other domain", form: &signUpForm{Email: "a@gmail.com", Password: "x"}, want: "Invalid email domain. Please use a dickinson.edu or arawatabill.org email."},
		{name: "subdomain", form: &signUpForm{Email: "a@mail.dickinson.edu", Password: "x"}, want: "Invalid email domain. Please use a dickinson.edu or arawatabill.org email."},
		{name: "empty reset email", form: &emailForm{}, want: msgEmailRequired},
		{name: "short password", form: &newPasswordForm{Password: "12345"}, want: msgPasswordTooShort},
		{name: "empty password", form: &newPasswordForm{}, want: msgPasswordTooShort},
		{name: "six characters", form: &newPasswordForm{Password: "123456"}, want: ""},
		{name: "oversized fragment", form: &linkForm{Fragment: strings.Repeat("a", 8193)}, want: msgInvalidForm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fv.validate(tt.form))
		})
	}
}

func TestFormValidatorWithoutDomainsAllowsAny(t *testing.T) {
	fv := newFormValidator(nil)
	assert.Empty(t, fv.validate(&signUpForm{Email: "a@gmail.com", Password: "x"}))
}

func TestMustRegisterValidationPanicsOnBadRule(t *testing.T) {
	v := validator.New()
	assert.Panics(t, func() {
		mustRegisterValidation(v, "", func(validator.FieldLevel) bool { return true })
	})
	assert.Panics(t, func() { mustRegisterValidation(v, "never", nil) })

	assert.NotPanics(t, func() {
		mustRegisterValidation(v, "always", func(validator.FieldLevel) bool { return true })
	})
	assert.NoError(t, v.Var("anything", "always"))
}

func TestDecodeFormUsesFirstValue(t *testing.T) {
	body := url.Values{"email": {"first@dickinson.edu", "second@dickinson.edu"}, "password": {"pw"}, "extra": {"ignored"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var form credentialsForm
	require.NoError(t, decodeForm(req, &form))
	assert.Equal(t, credentialsForm{Email: "first@dickinson.edu", Password: "pw"}, form)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
