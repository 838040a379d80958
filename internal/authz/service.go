package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/observability/metrics"
	"github.com/hangar-aero/hangar/internal/observability/tracing"
	"github.com/hangar-aero/hangar/internal/rbac"
)

// Service resolves roles and capabilities for subjects and applies
// grant/revoke mutations. Every read failure is surfaced as
// ErrStoreUnavailable so callers can fail closed.
type Service struct {
	assignments  AssignmentRepository
	capabilities CapabilityRepository
	auditLogger  audit.Logger
	metrics      *metrics.Access
}

// NewService creates a new authorization service
func NewService(
	assignments AssignmentRepository,
	capabilities CapabilityRepository,
	auditLogger audit.Logger,
	m *metrics.Access,
) *Service {
	return &Service{
		assignments:  assignments,
		capabilities: capabilities,
		auditLogger:  auditLogger,
		metrics:      m,
	}
}

// RolesForSubject returns the subject's current roles straight from the store.
func (s *Service) RolesForSubject(ctx context.Context, subjectID string) ([]rbac.Role, error) {
	ctx, span := tracing.Start(ctx, "authz.RolesForSubject", attribute.String("subject.id", subjectID))
	defer span.End()

	start := time.Now()
	roles, err := s.assignments.RolesForSubject(ctx, subjectID)
	s.metrics.StoreQuery(ctx, "roles_for_subject", start, err)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return rbac.Normalize(roles), nil
}

// CapabilitiesForRole returns every row stored for role.
func (s *Service) CapabilitiesForRole(ctx context.Context, role rbac.Role) ([]RoleCapability, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	ctx, span := tracing.Start(ctx, "authz.CapabilitiesForRole", attribute.String("role", string(role)))
	defer span.End()

	start := time.Now()
	rows, err := s.capabilities.CapabilitiesForRole(ctx, role)
	s.metrics.StoreQuery(ctx, "capabilities_for_role", start, err)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return rows, nil
}

// CheckCapability returns nil when the subject holds the capability, and an
// error wrapping ErrForbidden or ErrStoreUnavailable otherwise.
func (s *Service) CheckCapability(ctx context.Context, subjectID, capability string) error {
	c, err := ParseCapability(capability)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}

	rows, err := s.rowsForSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if !Decide(rows, c) {
		return fmt.Errorf("%w: %s", ErrForbidden, c)
	}
	return nil
}

// HasCapability reports whether any of the subject's roles grants the
// capability and none explicitly denies it. Store failures yield false.
func (s *Service) HasCapability(ctx context.Context, subjectID, capability string) bool {
	err := s.CheckCapability(ctx, subjectID, capability)
	if errors.Is(err, ErrStoreUnavailable) {
		slog.WarnContext(ctx, "capability check failed closed",
			logger.SubjectID(subjectID),
			logger.Capability(capability),
			logger.Error(err),
		)
	}
	return err == nil
}

// EffectiveCapabilities returns the capabilities the subject holds after
// applying explicit denies, sorted by name.
func (s *Service) EffectiveCapabilities(ctx context.Context, subjectID string) ([]Capability, error) {
	rows, err := s.rowsForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return Effective(rows), nil
}

// VisibleMenus returns the navigation entries the subject may see.
func (s *Service) VisibleMenus(ctx context.Context, subjectID string) ([]string, error) {
	caps, err := s.EffectiveCapabilities(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	menus := []string{}
	for _, c := range caps {
		if c.IsMenu() {
			menus = append(menus, c.ResourceName)
		}
	}
	return menus, nil
}

func (s *Service) rowsForSubject(ctx context.Context, subjectID string) ([]RoleCapability, error) {
	roles, err := s.RolesForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	ctx, span := tracing.Start(ctx, "authz.CapabilitiesForRoles", attribute.Int("roles", len(roles)))
	defer span.End()

	start := time.Now()
	rows, err := s.capabilities.CapabilitiesForRoles(ctx, roles)
	s.metrics.StoreQuery(ctx, "capabilities_for_roles", start, err)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return rows, nil
}

// Decide applies deny-wins precedence: c is held iff some row grants it and
// no row denies it.
func Decide(rows []RoleCapability, c Capability) bool {
	granted := false
	for _, rc := range rows {
		if rc.Capability != c {
			continue
		}
		if !rc.IsGranted {
			return false
		}
		granted = true
	}
	return granted
}

// Effective unions granted rows and removes explicitly denied capabilities.
func Effective(rows []RoleCapability) []Capability {
	granted := make(map[Capability]bool)
	denied := make(map[Capability]bool)
	for _, rc := range rows {
		if rc.IsGranted {
			granted[rc.Capability] = true
		} else {
			denied[rc.Capability] = true
		}
	}

	out := make([]Capability, 0, len(granted))
	for c := range granted {
		if !denied[c] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Grant assigns role to subjectID. Concurrent grants and revokes are
// last-write-wins.
func (s *Service) Grant(ctx context.Context, actorID, subjectID string, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	err := s.assignments.Grant(ctx, Assignment{
		SubjectID: subjectID,
		Role:      role,
		GrantedBy: actorID,
		GrantedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to grant %s: %w", role, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeRoleGranted,
		ActorID:   actorID,
		SubjectID: subjectID,
		Resource:  role.String(),
	})
	return nil
}

// Revoke removes role from subjectID. Revoking the only remaining role is
// rejected with ErrLastRole; revoking a role that is not held is a no-op.
func (s *Service) Revoke(ctx context.Context, actorID, subjectID string, role rbac.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	current, err := s.RolesForSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if !slices.Contains(current, role) {
		return nil
	}
	if len(current) == 1 {
		return ErrLastRole
	}

	if err := s.assignments.Revoke(ctx, subjectID, role); err != nil {
		return fmt.Errorf("failed to revoke %s: %w", role, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeRoleRevoked,
		ActorID:   actorID,
		SubjectID: subjectID,
		Resource:  role.String(),
	})
	return nil
}

// ListAssignments returns a subject's roles with grant metadata.
func (s *Service) ListAssignments(ctx context.Context, subjectID string) ([]Assignment, error) {
	out, err := s.assignments.ListAssignments(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return out, nil
}

// ListRoles returns the role catalogue, each role with its capability rows.
func (s *Service) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	roles, err := s.capabilities.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	names := make([]rbac.Role, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	rows, err := s.capabilities.CapabilitiesForRoles(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	byRole := make(map[rbac.Role][]RoleCapability)
	for _, rc := range rows {
		byRole[rc.Role] = append(byRole[rc.Role], rc)
	}
	for i := range roles {
		roles[i].Capabilities = byRole[roles[i].Name]
		if roles[i].Capabilities == nil {
			roles[i].Capabilities = []RoleCapability{}
		}
	}
	return roles, nil
}

// SetRoleCapability grants or explicitly denies a capability for a role.
func (s *Service) SetRoleCapability(ctx context.Context, actorID string, role rbac.Role, capability string, granted bool) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	c, err := ParseCapability(capability)
	if err != nil {
		return err
	}

	if err := s.capabilities.SetRoleCapability(ctx, RoleCapability{Role: role, Capability: c, IsGranted: granted}); err != nil {
		return fmt.Errorf("failed to update %s for %s: %w", c, role, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleCapabilityChanged,
		ActorID:  actorID,
		Resource: role.String(),
		Metadata: map[string]any{"capability": c.String(), "is_granted": granted},
	})
	return nil
}
