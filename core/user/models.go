package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/rollcall/core"
)

const (
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"
	RoleScanner    = "scanner:" // volunteers checking attendees in & out at the gates
)

// Role describes a staff role. Staff can only grant roles up to their own max Priority.
type Role struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Flag     string `json:"-"` // rollcall-admin --role value
	Priority int    `json:"priority"`
}

// Roles lists the staff roles, lowest priority first.
var Roles = []Role{
	{Name: "Scanner", Value: RoleScanner, Flag: "scanner", Priority: 11},
	{Name: "Admin", Value: RoleAdmin, Flag: "admin", Priority: 21},
	{Name: "Admin Owner", Value: RoleAdminOwner, Flag: "owner", Priority: 30},
}

func lookupRole(match func(Role) bool) (Role, bool) {
	for _, r := range Roles {
		if match(r) {
			return r, true
		}
	}
	return Role{}, false
}

// RoleByFlag finds a Role by its short command line name.
func RoleByFlag(flag string) (Role, bool) {
	return lookupRole(func(r Role) bool { return r.Flag == flag })
}

func knownRole(value string) bool {
	_, ok := lookupRole(func(r Role) bool { return r.Value == value })
	return ok
}

// MaxRolePriority is 0 without any known role.
func MaxRolePriority(roles []string) int {
	var top int
	for _, value := range roles {
		if r, ok := lookupRole(func(r Role) bool { return r.Value == value }); ok && r.Priority > top {
			top = r.Priority
		}
	}
	return top
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     *bool     `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`           // UTC
	UpdatedAt    time.Time `json:"updated_at"`           // UTC
	LastLogin    time.Time `json:"last_login,omitempty"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u User) IsScanner() bool {
	return u.RoleStartsWith(RoleScanner)
}

// CanScan is true for users allowed to validate attendance codes.
func (u User) CanScan() bool {
	return u.IsAdmin() || u.IsScanner()
}

// CanGrant reports whether the user may hand out `roles`, or manage staff holding them.
func (u User) CanGrant(roles []string) bool {
	return MaxRolePriority(roles) <= MaxRolePriority(u.Roles)
}

func (u User) LogUser() core.LogUser {
	return core.LogUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter looks up a single User by one of its unique fields, in field order.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
