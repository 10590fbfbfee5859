// Package signup implements the account registration wizard as an explicit
// state machine: PhoneEntry → CodeVerification → ProfileDetails → Completed.
package signup

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"parkspot-backend/internal/apperr"
	"parkspot-backend/internal/backend"
)

// Step is a named wizard state.
type Step string

const (
	StepPhoneEntry       Step = "phone_entry"
	StepCodeVerification Step = "code_verification"
	StepProfileDetails   Step = "profile_details"
	StepCompleted        Step = "completed"
)

// Wizard is one registration in progress.
type Wizard struct {
	ID                string                  `json:"id"`
	Step              Step                    `json:"step"`
	Phone             string                  `json:"phone,omitempty"`
	CodeSentAt        time.Time               `json:"code_sent_at,omitzero"`
	VerificationToken string                  `json:"-"`
	Account           *backend.RegisterResult `json:"account,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}

// Profile is what the last step collects.
type Profile struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	VehiclePlate string `json:"vehicle_plate"`
}

var (
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
	codePattern  = regexp.MustCompile(`^\d{4,6}$`)
)

// NormalizePhone strips spaces, dashes and a +86 prefix and checks the
// result is a mainland mobile number.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+86")
	if !phonePattern.MatchString(p) {
		return "", apperr.ErrInvalidPhone
	}
	return p, nil
}

// ValidateCode checks a verification code is 4 to 6 digits.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return "", apperr.ErrInvalidCode
	}
	return code, nil
}

// Validate trims the profile and checks the required fields.
func (p Profile) Validate() (Profile, error) {
	p.Username = strings.TrimSpace(p.Username)
	p.VehiclePlate = strings.ToUpper(strings.TrimSpace(p.VehiclePlate))
	if n := utf8.RuneCountInString(p.Username); n < 2 || n > 32 {
		return p, apperr.ErrInvalidProfile.WithMessage("username must be 2 to 32 characters")
	}
	if utf8.RuneCountInString(p.Password) < 6 {
		return p, apperr.ErrInvalidProfile.WithMessage("password must be at least 6 characters")
	}
	return p, nil
}

// expect guards a transition that is only legal from step.
func (w *Wizard) expect(step Step) error {
	if w.Step != step {
		return apperr.ErrWrongStep.WithMessage("wizard is at " + string(w.Step) + ", not " + string(step))
	}
	return nil
}

func (w *Wizard) codeSent(phone string, at time.Time) {
	w.Phone = phone
	w.CodeSentAt = at
	w.Step = StepCodeVerification
}

func (w *Wizard) verified(token string) {
	w.VerificationToken = token
	w.Step = StepProfileDetails
}

func (w *Wizard) completed(account *backend.RegisterResult) {
	w.Account = account
	w.VerificationToken = ""
	w.Step = StepCompleted
}

// back moves one step towards the start. A completed wizard and one at the
// first step cannot go back. Leaving ProfileDetails discards the
// verification token so the code has to be entered again.
func (w *Wizard) back() error {
	switch w.Step {
	case StepCodeVerification:
		w.Step = StepPhoneEntry
		w.CodeSentAt = time.Time{}
	case StepProfileDetails:
		w.Step = StepCodeVerification
		w.VerificationToken = ""
	default:
		return apperr.ErrWrongStep.WithMessage("cannot go back from " + string(w.Step))
	}
	return nil
}
