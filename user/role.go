package user

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

type Role int

const (
	SuperAdmin Role = iota + 1
	Admin
	Organizer
	Attendee
	Sponsor
)

var ErrUnknownRole = errors.New("unknown role")

func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUPER_ADMIN":
		return SuperAdmin, nil
	case "ADMIN":
		return Admin, nil
	case "ORGANIZER":
		return Organizer, nil
	case "ATTENDEE":
		return Attendee, nil
	case "SPONSOR":
		return Sponsor, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	switch r {
	case SuperAdmin:
		return "SUPER_ADMIN"
	case Admin:
		return "ADMIN"
	case Organizer:
		return "ORGANIZER"
	case Attendee:
		return "ATTENDEE"
	case Sponsor:
		return "SPONSOR"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Global roles are not bound to a single ledger.
func (r Role) Global() bool {
	switch r {
	case SuperAdmin:
		return true
	case Admin, Organizer, Attendee, Sponsor:
		return false
	}
	return false
}

// CanManage reports whether the role may change ledger data, close and reopen ledgers.
func (r Role) CanManage() bool {
	switch r {
	case SuperAdmin, Admin:
		return true
	case Organizer, Attendee, Sponsor:
		return false
	}
	return false
}

// CanView reports whether the role may read ledger data.
func (r Role) CanView() bool {
	switch r {
	case SuperAdmin, Admin, Organizer, Attendee, Sponsor:
		return true
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) Value() (driver.Value, error) {
	return r.String(), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	}
	return fmt.Errorf("scanning role from %T", src)
}
