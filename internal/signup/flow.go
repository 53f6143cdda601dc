package signup

import (
	"strings"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

// Request is one inbound signup. Role is empty when the caller did not ask
// for one.
type Request struct {
	Email            string
	Password         string
	MobileNumber     string
	FullName         string
	FirstName        string
	LastName         string
	Nickname         string
	Color            string
	Role             userentity.Role
	InviteToken      string
	LinkExistingUser bool
	// Bearer is the raw credential from the Authorization header, if any.
	Bearer string
}

// Flow is the closed set of signup entry points. Every flow runs the same
// resolver and reconciliation stages; only how the identity is obtained and
// what happens to the profile differ.
type Flow interface {
	Name() string
	isFlow()
}

// PasswordNew registers a new password identity.
type PasswordNew struct {
	Password string
}

// OAuthExisting signs up an identity the provider already issued.
type OAuthExisting struct {
	Bearer string
}

// LinkExisting attaches an invitation to an already settled user. Bearer is
// optional.
type LinkExisting struct {
	Bearer string
}

func (PasswordNew) Name() string   { return "password_new" }
func (OAuthExisting) Name() string { return "oauth_existing" }
func (LinkExisting) Name() string  { return "link_existing" }

func (PasswordNew) isFlow()   {}
func (OAuthExisting) isFlow() {}
func (LinkExisting) isFlow()  {}

// classify picks the flow in priority order: link-existing-user, then a
// bearer credential, then password signup. It only checks field presence;
// nothing is looked up.
func classify(req Request, contact userentity.Contact) (Flow, *Error) {
	bearer := strings.TrimSpace(req.Bearer)
	if req.Role != "" && !req.Role.Valid() {
		return nil, inputError("unknown role")
	}
	switch {
	case req.LinkExistingUser:
		if contact.Email == nil && contact.MobileNumber == nil && bearer == "" {
			return nil, inputError("email or mobile_number required to link an existing user")
		}
		return LinkExisting{Bearer: bearer}, nil
	case bearer != "":
		return OAuthExisting{Bearer: bearer}, nil
	default:
		if req.Password == "" {
			return nil, inputError("password required")
		}
		if contact.Email == nil && contact.MobileNumber == nil {
			return nil, inputError("email or mobile_number required")
		}
		if strings.TrimSpace(req.FullName) == "" {
			return nil, inputError("full_name required")
		}
		return PasswordNew{Password: req.Password}, nil
	}
}

// requestContact normalizes the contact fields of req.
func requestContact(req Request, countryCode string) userentity.Contact {
	c := userentity.Contact{Email: normalize.EmailPtr(req.Email)}
	if m, ok := normalize.MobileWithCountry(req.MobileNumber, countryCode); ok {
		c.MobileNumber = &m
	}
	return c
}

// withIdentityContact fills the blanks of c from what the provider verified.
func withIdentityContact(c userentity.Contact, email, phone, countryCode string) userentity.Contact {
	if c.Email == nil {
		c.Email = normalize.EmailPtr(email)
	}
	if c.MobileNumber == nil {
		if m, ok := normalize.MobileWithCountry(phone, countryCode); ok {
			c.MobileNumber = &m
		}
	}
	return c
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
