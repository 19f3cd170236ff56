package micstate

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"

	"github.com/iliyamo/open-mic/internal/model"
)

var (
	ErrNoIdentityField     = errors.New("signup must collect an email or a phone number")
	ErrNoRequiredIdentity  = errors.New("at least one collected identity field must be required")
	ErrNameRequired        = errors.New("name is required")
	ErrEmailRequired       = errors.New("email is required")
	ErrPhoneRequired       = errors.New("phone number is required")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrIdentityUnsupported = errors.New("this mic does not collect that identity field")
)

// ValidateSignupConfig checks that a mic always collects at least one
// mandatory identity field.  A field that is collected but optional
// forces the other one to be required.
func ValidateSignupConfig(cfg model.SignupConfig) error {
	if !cfg.Email.Use && !cfg.Phone.Use {
		return ErrNoIdentityField
	}
	if cfg.Email.Use && !cfg.Email.Required && !cfg.Phone.Required {
		return ErrNoRequiredIdentity
	}
	if cfg.Phone.Use && !cfg.Phone.Required && !cfg.Email.Required {
		return ErrNoRequiredIdentity
	}
	if (cfg.Email.Required && !cfg.Email.Use) || (cfg.Phone.Required && !cfg.Phone.Use) {
		return ErrNoRequiredIdentity
	}
	return nil
}

// NormalizeAnonIdentity trims the identity and lower-cases the email so
// lookups compare like with like.  Phone numbers keep only digits and a
// leading plus sign.
func NormalizeAnonIdentity(id model.AnonIdentity) model.AnonIdentity {
	id.Name = strings.TrimSpace(id.Name)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	id.Phone = normalizePhone(id.Phone)
	return id
}

// ValidateAnonIdentity checks an anonymous signup against the mic's
// SignupConfig.  The identity should be normalized first.
func ValidateAnonIdentity(cfg model.SignupConfig, id model.AnonIdentity) error {
	if id.Name == "" {
		return ErrNameRequired
	}
	if id.Email != "" {
		if !cfg.Email.Use {
			return ErrIdentityUnsupported
		}
		if _, err := mail.ParseAddress(id.Email); err != nil {
			return ErrInvalidEmail
		}
	} else if cfg.Email.Required {
		return ErrEmailRequired
	}
	if id.Phone != "" {
		if !cfg.Phone.Use {
			return ErrIdentityUnsupported
		}
		if digits := strings.TrimPrefix(id.Phone, "+"); len(digits) < 7 || len(digits) > 15 {
			return ErrInvalidPhone
		}
	} else if cfg.Phone.Required {
		return ErrPhoneRequired
	}
	if id.Email == "" && id.Phone == "" {
		return ErrEmailRequired
	}
	return nil
}

// MatchesAnon reports whether a roster entry belongs to the given
// anonymous identity.  Either field matching is enough.
func MatchesAnon(p model.Performer, id model.AnonIdentity) bool {
	if p.Kind != model.PerformerAnon {
		return false
	}
	if id.Email != "" && strings.EqualFold(p.Email, id.Email) {
		return true
	}
	return id.Phone != "" && p.Phone == id.Phone
}

func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
