package authz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hangar-aero/hangar/internal/rbac"
)

// Domain errors
var (
	ErrForbidden          = errors.New("access denied")
	ErrStoreUnavailable   = errors.New("role store unavailable")
	ErrSubjectNotFound    = errors.New("subject not found")
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrInvalidCapability  = errors.New("invalid capability")
	ErrInvalidRole        = errors.New("invalid role")
	ErrLastRole           = errors.New("cannot revoke the last role of a subject")
)

// MenuResourceType groups capabilities that only control navigation entries.
const (
	MenuResourceType = "menu"
	MenuAction       = "view"
)

var segment = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Capability is one fine-grained permission. Its identity is the triple.
type Capability struct {
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	Action       string `json:"action"`
}

// ParseCapability parses the dotted form resourceType.resourceName.action.
func ParseCapability(s string) (Capability, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Capability{}, fmt.Errorf("%w: %q must have three dot-separated parts", ErrInvalidCapability, s)
	}
	for _, p := range parts {
		if !segment.MatchString(p) {
			return Capability{}, fmt.Errorf("%w: %q has an invalid segment %q", ErrInvalidCapability, s, p)
		}
	}
	return Capability{ResourceType: parts[0], ResourceName: parts[1], Action: parts[2]}, nil
}

// MustCapability is ParseCapability for compile-time constants.
func MustCapability(s string) Capability {
	c, err := ParseCapability(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Capability) String() string {
	return c.ResourceType + "." + c.ResourceName + "." + c.Action
}

// IsMenu reports whether c controls menu visibility.
func (c Capability) IsMenu() bool {
	return c.ResourceType == MenuResourceType && c.Action == MenuAction
}

// RoleCapability joins a role to a capability. A missing row means not
// granted; a row with IsGranted false is an explicit deny.
type RoleCapability struct {
	Role       rbac.Role  `json:"role"`
	Capability Capability `json:"capability"`
	IsGranted  bool       `json:"is_granted"`
}

// Assignment is a role held by a subject.
type Assignment struct {
	SubjectID string
	Role      rbac.Role
	GrantedBy string
	GrantedAt time.Time
}

// RoleInfo describes a role and its capability rows for administration.
type RoleInfo struct {
	Name         rbac.Role        `json:"name"`
	Description  string           `json:"description"`
	Capabilities []RoleCapability `json:"capabilities"`
}

// AssignmentRepository persists subject to role assignments.
type AssignmentRepository interface {
	// RolesForSubject returns the roles currently assigned to a subject.
	RolesForSubject(ctx context.Context, subjectID string) ([]rbac.Role, error)

	// Grant assigns a role. Granting an already held role is a no-op.
	Grant(ctx context.Context, a Assignment) error

	// Revoke removes a role. Revoking a role that is not held is a no-op.
	Revoke(ctx context.Context, subjectID string, role rbac.Role) error

	// ListAssignments returns the assignments of a subject with grant metadata.
	ListAssignments(ctx context.Context, subjectID string) ([]Assignment, error)
}

// CapabilityRepository persists roles, capabilities and their join rows.
type CapabilityRepository interface {
	// CapabilitiesForRole returns every row for a role, granted or denied.
	CapabilitiesForRole(ctx context.Context, role rbac.Role) ([]RoleCapability, error)

	// CapabilitiesForRoles returns the rows of all given roles in one query.
	CapabilitiesForRoles(ctx context.Context, roles []rbac.Role) ([]RoleCapability, error)

	// SetRoleCapability upserts a row. The capability must exist.
	SetRoleCapability(ctx context.Context, rc RoleCapability) error

	// ListRoles returns the role catalogue with descriptions.
	ListRoles(ctx context.Context) ([]RoleInfo, error)
}
