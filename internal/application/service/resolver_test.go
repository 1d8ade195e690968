package service

import (
	"context"
	"testing"

	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproverResolver_Resolve(t *testing.T) {
	dir := newDirectory()
	// a second, higher-ID school director in the same unit and an inactive purchaser
	dir.users[20] = &entity.User{ID: 20, Active: true, Unit: "North", Roles: []string{entity.RoleSchoolDirector}}
	dir.users[21] = &entity.User{ID: 21, Active: false, Roles: []string{entity.RolePurchasing}}
	dir.users[22] = &entity.User{ID: 22, Active: false, Roles: []string{entity.RoleAdmin}}
	resolver := NewApproverResolver(dir)

	teacher := ResolutionContext{Requester: dir.users[uTeacher]}
	orphan := ResolutionContext{Requester: dir.users[uOrphanTeacher]}

	tests := []struct {
		name     string
		strategy ApproverStrategy
		rc       ResolutionContext
		want     int64
		wantErr  bool
	}{
		{name: "specific user", strategy: SpecificUser{UserID: uCEO}, rc: teacher, want: uCEO},
		{name: "specific user missing", strategy: SpecificUser{UserID: 99}, rc: teacher, wantErr: true},
		{name: "specific user inactive", strategy: SpecificUser{UserID: 22}, rc: teacher, wantErr: true},
		{name: "role picks lowest id", strategy: RoleBased{Role: entity.RoleSchoolDirector}, rc: teacher, want: uSchoolDirector},
		{name: "role skips inactive holders", strategy: RoleBased{Role: entity.RolePurchasing}, rc: teacher, want: uPurchasing},
		{name: "role without holders", strategy: RoleBased{Role: "AUDITOR"}, rc: teacher, wantErr: true},
		{name: "direct manager", strategy: ManagerHierarchy{Levels: 1}, rc: teacher, want: uDeptHead},
		{name: "manager two levels up", strategy: ManagerHierarchy{Levels: 2}, rc: teacher, want: uSchoolDirector},
		{name: "zero levels means one", strategy: ManagerHierarchy{}, rc: teacher, want: uDeptHead},
		{name: "chain ends early", strategy: ManagerHierarchy{Levels: 10}, rc: teacher, wantErr: true},
		{name: "requester without manager", strategy: ManagerHierarchy{Levels: 1}, rc: orphan, wantErr: true},
		{name: "department head", strategy: DepartmentHead{}, rc: teacher, want: uDeptHead},
		{name: "department head in other department", strategy: DepartmentHead{}, rc: orphan, wantErr: true},
		{name: "unit manager", strategy: UnitManager{}, rc: teacher, want: uSchoolDirector},
		{name: "unit manager with explicit role", strategy: UnitManager{Role: entity.RoleCommitteeHead}, rc: teacher, want: uCommitteeHead},
		{name: "unit manager in other unit", strategy: UnitManager{}, rc: orphan, wantErr: true},
		{name: "nil strategy", rc: teacher, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.strategy, tt.rc)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperror.ErrApproverNotFound)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestManagerHierarchy_Cycle(t *testing.T) {
	dir := newMemUsers(
		&entity.User{ID: 1, Active: true, ManagerID: int64Ptr(2)},
		&entity.User{ID: 2, Active: true, ManagerID: int64Ptr(1)},
	)

	// two levels up from user 1 lands back on user 1
	_, err := ManagerHierarchy{Levels: 2}.Resolve(context.Background(), dir, ResolutionContext{Requester: dir.users[1]})
	assert.ErrorIs(t, err, apperror.ErrApproverNotFound)

	// the walk is bounded, so a huge level count terminates
	_, err = ManagerHierarchy{Levels: 1000}.Resolve(context.Background(), dir, ResolutionContext{Requester: dir.users[1]})
	assert.ErrorIs(t, err, apperror.ErrApproverNotFound)

	got, err := ManagerHierarchy{Levels: 3}.Resolve(context.Background(), dir, ResolutionContext{Requester: dir.users[1]})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		name    string
		def     entity.StepDefinition
		want    ApproverStrategy
		wantErr bool
	}{
		{name: "specific user", def: entity.StepDefinition{Strategy: entity.StrategySpecificUser, ApproverUserID: int64Ptr(5)}, want: SpecificUser{UserID: 5}},
		{name: "specific user without id", def: entity.StepDefinition{Strategy: entity.StrategySpecificUser}, wantErr: true},
		{name: "role", def: entity.StepDefinition{Strategy: entity.StrategyRoleBased, ApproverRole: "CEO"}, want: RoleBased{Role: "CEO"}},
		{name: "role without name", def: entity.StepDefinition{Strategy: entity.StrategyRoleBased}, wantErr: true},
		{name: "manager default level", def: entity.StepDefinition{Strategy: entity.StrategyManagerHierarchy}, want: ManagerHierarchy{Levels: 1}},
		{name: "manager level", def: entity.StepDefinition{Strategy: entity.StrategyManagerHierarchy, ApprovalLevel: "3"}, want: ManagerHierarchy{Levels: 3}},
		{name: "manager bad level", def: entity.StepDefinition{Strategy: entity.StrategyManagerHierarchy, ApprovalLevel: "high"}, wantErr: true},
		{name: "department head", def: entity.StepDefinition{Strategy: entity.StrategyDepartmentHead}, want: DepartmentHead{}},
		{name: "unit manager", def: entity.StepDefinition{Strategy: entity.StrategyUnitManager, ApproverRole: "X"}, want: UnitManager{Role: "X"}},
		{name: "unknown", def: entity.StepDefinition{Strategy: "ROUND_ROBIN"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StrategyFor(tt.def)
			if tt.wantErr {
				var vErr *apperror.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.def.Strategy, got.Type())
		})
	}
}
