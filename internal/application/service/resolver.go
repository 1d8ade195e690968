package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/apperror"
)

// maxManagerDepth bounds manager chain walks so a cycle in the directory
// cannot loop forever
const maxManagerDepth = 32

// ResolutionContext carries what strategies may look at
type ResolutionContext struct {
	Requester *entity.User
	Request   *entity.PurchaseRequest
}

// ApproverStrategy resolves one step's approver from the user directory
type ApproverStrategy interface {
	Type() entity.ApproverStrategyType
	Resolve(ctx context.Context, dir port.UserDirectory, rc ResolutionContext) (*entity.User, error)
}

// SpecificUser always resolves to the same active user
type SpecificUser struct {
	UserID int64
}

// RoleBased resolves to the active role holder with the lowest ID
type RoleBased struct {
	Role string
}

// ManagerHierarchy walks Levels steps up the requester's manager chain
type ManagerHierarchy struct {
	Levels int
}

// DepartmentHead resolves to the role holder in the requester's department
type DepartmentHead struct {
	Role string
}

// UnitManager resolves to the role holder in the requester's unit
type UnitManager struct {
	Role string
}

func (SpecificUser) Type() entity.ApproverStrategyType { return entity.StrategySpecificUser }
func (RoleBased) Type() entity.ApproverStrategyType    { return entity.StrategyRoleBased }
func (ManagerHierarchy) Type() entity.ApproverStrategyType {
	return entity.StrategyManagerHierarchy
}
func (DepartmentHead) Type() entity.ApproverStrategyType { return entity.StrategyDepartmentHead }
func (UnitManager) Type() entity.ApproverStrategyType    { return entity.StrategyUnitManager }

func (s SpecificUser) Resolve(ctx context.Context, dir port.UserDirectory, _ ResolutionContext) (*entity.User, error) {
	user, err := dir.FindByID(ctx, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", s.UserID, err)
	}
	if user == nil || !user.Active {
		return nil, apperror.NewApproverResolutionError(string(s.Type()),
			fmt.Sprintf("user %d does not exist or is inactive", s.UserID))
	}
	return user, nil
}

func (s RoleBased) Resolve(ctx context.Context, dir port.UserDirectory, _ ResolutionContext) (*entity.User, error) {
	users, err := dir.FindActiveByRole(ctx, s.Role)
	if err != nil {
		return nil, fmt.Errorf("find users with role %s: %w", s.Role, err)
	}
	if user := lowestID(users); user != nil {
		return user, nil
	}
	return nil, apperror.NewApproverResolutionError(string(s.Type()),
		fmt.Sprintf("no active user holds role %s", s.Role))
}

func (s ManagerHierarchy) Resolve(ctx context.Context, dir port.UserDirectory, rc ResolutionContext) (*entity.User, error) {
	if rc.Requester == nil {
		return nil, apperror.NewApproverResolutionError(string(s.Type()), "requester is unknown")
	}

	levels := s.Levels
	if levels < 1 {
		levels = 1
	}
	if levels > maxManagerDepth {
		levels = maxManagerDepth
	}

	current := rc.Requester
	for i := 0; i < levels; i++ {
		manager, err := dir.GetManager(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("get manager of user %d: %w", current.ID, err)
		}
		if manager == nil {
			return nil, apperror.NewApproverResolutionError(string(s.Type()),
				fmt.Sprintf("user %d has no manager at level %d", current.ID, i+1))
		}
		current = manager
	}

	if !current.Active || current.ID == rc.Requester.ID {
		return nil, apperror.NewApproverResolutionError(string(s.Type()),
			fmt.Sprintf("manager %d of requester %d is not eligible", current.ID, rc.Requester.ID))
	}
	return current, nil
}

func (s DepartmentHead) Resolve(ctx context.Context, dir port.UserDirectory, rc ResolutionContext) (*entity.User, error) {
	role := s.Role
	if role == "" {
		role = entity.RoleDepartmentHead
	}
	if rc.Requester == nil || rc.Requester.Department == "" {
		return nil, apperror.NewApproverResolutionError(string(s.Type()), "requester has no department")
	}

	users, err := dir.FindActiveByRoleInDepartment(ctx, role, rc.Requester.Department)
	if err != nil {
		return nil, fmt.Errorf("find %s in department %s: %w", role, rc.Requester.Department, err)
	}
	if user := lowestID(users); user != nil {
		return user, nil
	}
	return nil, apperror.NewApproverResolutionError(string(s.Type()),
		fmt.Sprintf("no active %s in department %s", role, rc.Requester.Department))
}

func (s UnitManager) Resolve(ctx context.Context, dir port.UserDirectory, rc ResolutionContext) (*entity.User, error) {
	role := s.Role
	if role == "" {
		role = entity.RoleSchoolDirector
	}
	if rc.Requester == nil || rc.Requester.Unit == "" {
		return nil, apperror.NewApproverResolutionError(string(s.Type()), "requester has no unit")
	}

	users, err := dir.FindActiveByRoleInUnit(ctx, role, rc.Requester.Unit)
	if err != nil {
		return nil, fmt.Errorf("find %s in unit %s: %w", role, rc.Requester.Unit, err)
	}
	if user := lowestID(users); user != nil {
		return user, nil
	}
	return nil, apperror.NewApproverResolutionError(string(s.Type()),
		fmt.Sprintf("no active %s in unit %s", role, rc.Requester.Unit))
}

// StrategyFor builds the strategy a step definition describes
func StrategyFor(def entity.StepDefinition) (ApproverStrategy, error) {
	switch def.Strategy {
	case entity.StrategySpecificUser:
		if def.ApproverUserID == nil {
			return nil, apperror.NewValidationError("approver_user_id",
				fmt.Sprintf("step %d: SPECIFIC_USER needs an approver user", def.StepOrder))
		}
		return SpecificUser{UserID: *def.ApproverUserID}, nil
	case entity.StrategyRoleBased:
		if def.ApproverRole == "" {
			return nil, apperror.NewValidationError("approver_role",
				fmt.Sprintf("step %d: ROLE_BASED needs an approver role", def.StepOrder))
		}
		return RoleBased{Role: def.ApproverRole}, nil
	case entity.StrategyManagerHierarchy:
		levels := 1
		if def.ApprovalLevel != "" {
			n, err := strconv.Atoi(def.ApprovalLevel)
			if err != nil || n < 1 {
				return nil, apperror.NewValidationError("approval_level",
					fmt.Sprintf("step %d: approval level must be a positive number of manager levels", def.StepOrder))
			}
			levels = n
		}
		return ManagerHierarchy{Levels: levels}, nil
	case entity.StrategyDepartmentHead:
		return DepartmentHead{Role: def.ApproverRole}, nil
	case entity.StrategyUnitManager:
		return UnitManager{Role: def.ApproverRole}, nil
	default:
		return nil, apperror.NewValidationError("strategy",
			fmt.Sprintf("step %d: unknown approver strategy %q", def.StepOrder, def.Strategy))
	}
}

// ApproverResolver turns a strategy into a concrete approver
type ApproverResolver interface {
	Resolve(ctx context.Context, strategy ApproverStrategy, rc ResolutionContext) (*entity.User, error)
}

type approverResolverImpl struct {
	users port.UserDirectory
}

// NewApproverResolver creates a new ApproverResolver
func NewApproverResolver(users port.UserDirectory) ApproverResolver {
	return &approverResolverImpl{users: users}
}

func (r *approverResolverImpl) Resolve(ctx context.Context, strategy ApproverStrategy, rc ResolutionContext) (*entity.User, error) {
	if strategy == nil {
		return nil, apperror.NewApproverResolutionError("", "no strategy given")
	}
	return strategy.Resolve(ctx, r.users, rc)
}

func lowestID(users []*entity.User) *entity.User {
	var best *entity.User
	for _, u := range users {
		if u == nil || !u.Active {
			continue
		}
		if best == nil || u.ID < best.ID {
			best = u
		}
	}
	return best
}
