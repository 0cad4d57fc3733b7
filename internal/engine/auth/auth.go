package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"reelboard/internal/config"
	"reelboard/internal/domain"
)

// Permissions.
const (
	PermCompanyRead   = "company.read"
	PermCompanyWrite  = "company.write"
	PermProjectRead   = "project.read"
	PermProjectWrite  = "project.write"
	PermProjectDelete = "project.delete"
	PermTaskRead      = "task.read"
	PermTaskWrite     = "task.write"
	PermTaskDelete    = "task.delete"
	PermUserWrite     = "user.write"
	PermAPIKeyWrite   = "apikey.write"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the authenticated caller.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

// Actor is the name written into history entries and audit rows.
func (p Principal) Actor() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Email != "" {
		return p.Email
	}
	return "system"
}

func (p Principal) Can(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// Require returns ForbiddenError unless the principal holds perm.
func (p Principal) Require(perm string) error {
	if p.Can(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// System is the principal used by the CLI and background jobs.
func System(cfg *config.Config) Principal {
	return Principal{Name: "system", Role: domain.RoleAdmin, Permissions: Policy{Config: cfg}.Permissions(domain.RoleAdmin), Source: "system"}
}

// Policy resolves role permissions from configuration.
type Policy struct {
	Config *config.Config
}

func (p Policy) Permissions(role string) []string {
	perms := append([]string{}, p.Config.Permissions(role)...)
	sort.Strings(perms)
	return perms
}

// PrincipalFor builds the principal of an active user.
func (p Policy) PrincipalFor(u domain.User, source string) Principal {
	return Principal{
		UserID:      u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: p.Permissions(u.Role),
		Source:      source,
	}
}

// ValidRole reports whether role is one of the built-in roles.
func ValidRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleEditor, domain.RoleClient, domain.RoleViewer:
		return true
	}
	return false
}

func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies an active user's password.
func CheckPassword(u domain.User, password string) error {
	if !u.Active {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
