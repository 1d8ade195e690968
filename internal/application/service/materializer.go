package service

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/apperror"
)

// FallbackChain is the role sequence used for requesters holding RequesterRole
type FallbackChain struct {
	RequesterRole string   `mapstructure:"requester_role" yaml:"requester_role"`
	Roles         []string `mapstructure:"roles" yaml:"roles"`
}

// FallbackPolicy routes requests no template matched. Chains are tried in
// order; the first whose RequesterRole the requester holds wins, else Default.
type FallbackPolicy struct {
	Chains  []FallbackChain `mapstructure:"chains" yaml:"chains"`
	Default []string        `mapstructure:"default" yaml:"default"`
}

// DefaultFallbackPolicy returns the built-in role hierarchy
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		Chains: []FallbackChain{
			{
				RequesterRole: entity.RoleTeacher,
				Roles: []string{
					entity.RoleCommitteeHead,
					entity.RoleSchoolDirector,
					entity.RolePurchasing,
					entity.RoleGeneralManager,
					entity.RoleCEO,
				},
			},
		},
		Default: []string{
			entity.RoleSchoolDirector,
			entity.RolePurchasing,
			entity.RoleGeneralManager,
			entity.RoleCEO,
		},
	}
}

// RolesFor picks the chain for requester
func (p FallbackPolicy) RolesFor(requester *entity.User) []string {
	for _, c := range p.Chains {
		if requester != nil && requester.HasRole(c.RequesterRole) {
			return c.Roles
		}
	}
	return p.Default
}

// Validate rejects empty chains
func (p FallbackPolicy) Validate() error {
	if len(p.Default) == 0 {
		return fmt.Errorf("fallback policy: default chain is empty")
	}
	for _, c := range p.Chains {
		if c.RequesterRole == "" {
			return fmt.Errorf("fallback policy: chain without requester role")
		}
		if len(c.Roles) == 0 {
			return fmt.Errorf("fallback policy: chain for %s is empty", c.RequesterRole)
		}
	}
	return nil
}

// StepMaterializer turns a template, or the fallback policy, into concrete
// approval steps for a request. It does not persist anything.
type StepMaterializer interface {
	Materialize(ctx context.Context, req *entity.PurchaseRequest, requester *entity.User, tmpl *entity.WorkflowTemplate) ([]*entity.ApprovalStep, error)
}

type stepMaterializerImpl struct {
	users    port.UserDirectory
	resolver ApproverResolver
	fallback FallbackPolicy
}

// NewStepMaterializer creates a new StepMaterializer
func NewStepMaterializer(users port.UserDirectory, resolver ApproverResolver, fallback FallbackPolicy) StepMaterializer {
	return &stepMaterializerImpl{
		users:    users,
		resolver: resolver,
		fallback: fallback,
	}
}

func (m *stepMaterializerImpl) Materialize(ctx context.Context, req *entity.PurchaseRequest, requester *entity.User, tmpl *entity.WorkflowTemplate) ([]*entity.ApprovalStep, error) {
	if req == nil || requester == nil {
		return nil, fmt.Errorf("materialize: request and requester are required")
	}

	rc := ResolutionContext{Requester: requester, Request: req}
	if tmpl != nil {
		return m.fromTemplate(ctx, rc, tmpl)
	}
	return m.fromFallback(ctx, rc)
}

func (m *stepMaterializerImpl) fromTemplate(ctx context.Context, rc ResolutionContext, tmpl *entity.WorkflowTemplate) ([]*entity.ApprovalStep, error) {
	defs := tmpl.ActiveSteps()
	if len(defs) == 0 {
		return nil, apperror.NewValidationError("steps",
			fmt.Sprintf("template %q has no active steps", tmpl.Name))
	}

	steps := make([]*entity.ApprovalStep, 0, len(defs))
	for i, def := range defs {
		strategy, err := StrategyFor(def)
		if err != nil {
			return nil, err
		}

		approver, err := m.resolver.Resolve(ctx, strategy, rc)
		if err != nil {
			return nil, err
		}

		steps = append(steps, newStep(rc.Request.ID, approver.ID, stepLabel(def), i+1))
	}
	return steps, nil
}

func (m *stepMaterializerImpl) fromFallback(ctx context.Context, rc ResolutionContext) ([]*entity.ApprovalStep, error) {
	manager, err := m.users.GetManager(ctx, rc.Requester.ID)
	if err != nil {
		return nil, fmt.Errorf("get manager of user %d: %w", rc.Requester.ID, err)
	}
	if manager == nil {
		return nil, apperror.NewApproverResolutionError("FALLBACK",
			fmt.Sprintf("requester %d has no manager", rc.Requester.ID))
	}

	roles := m.fallback.RolesFor(rc.Requester)
	steps := make([]*entity.ApprovalStep, 0, len(roles))
	for i, role := range roles {
		approver, err := m.resolver.Resolve(ctx, RoleBased{Role: role}, rc)
		if err != nil {
			return nil, err
		}
		steps = append(steps, newStep(rc.Request.ID, approver.ID, role, i+1))
	}
	return steps, nil
}

func newStep(requestID, approverID int64, label string, order int) *entity.ApprovalStep {
	return &entity.ApprovalStep{
		RequestID:  requestID,
		ApproverID: approverID,
		RoleName:   label,
		StepOrder:  order,
		Status:     entity.StepStatusPending,
	}
}

func stepLabel(def entity.StepDefinition) string {
	switch {
	case def.ApproverRole != "":
		return def.ApproverRole
	case def.Name != "":
		return def.Name
	default:
		return string(def.Strategy)
	}
}
