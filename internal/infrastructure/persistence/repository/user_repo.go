package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserDirectory on the users/roles tables
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user directory backed by SQLite
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userSelect = `
	SELECT u.id, u.email, u.name, u.department, u.unit, u.manager_id, u.active, u.created_at,
		COALESCE(GROUP_CONCAT(r.name, ','), '')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id
`

const activeWithRole = `u.active = 1 AND u.id IN (
		SELECT ur2.user_id FROM user_roles ur2
		JOIN roles r2 ON r2.id = ur2.role_id
		WHERE r2.name = ?)`

// FindByID returns nil when the user does not exist
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.queryOne(ctx, userSelect+` WHERE u.id = ? GROUP BY u.id`, id)
}

// FindByEmail returns nil when no user has the email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.queryOne(ctx, userSelect+` WHERE u.email = ? GROUP BY u.id`, email)
}

func (r *UserRepository) FindActiveByRole(ctx context.Context, role string) ([]*entity.User, error) {
	return r.queryMany(ctx, userSelect+` WHERE `+activeWithRole+` GROUP BY u.id ORDER BY u.id`, role)
}

func (r *UserRepository) FindActiveByRoleInDepartment(ctx context.Context, role, department string) ([]*entity.User, error) {
	return r.queryMany(ctx, userSelect+` WHERE `+activeWithRole+` AND u.department = ? GROUP BY u.id ORDER BY u.id`, role, department)
}

func (r *UserRepository) FindActiveByRoleInUnit(ctx context.Context, role, unit string) ([]*entity.User, error) {
	return r.queryMany(ctx, userSelect+` WHERE `+activeWithRole+` AND u.unit = ? GROUP BY u.id ORDER BY u.id`, role, unit)
}

// GetManager returns the user's manager, or nil when none is recorded
func (r *UserRepository) GetManager(ctx context.Context, userID int64) (*entity.User, error) {
	return r.queryOne(ctx, userSelect+`
		WHERE u.id = (SELECT manager_id FROM users WHERE id = ?)
		GROUP BY u.id`, userID)
}

func (r *UserRepository) RoleExists(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE name = ?)`, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// Count returns the number of users in the directory
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *UserRepository) CreateRole(ctx context.Context, role *entity.Role) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`INSERT INTO roles (name, display_name, description) VALUES (?, ?, ?)`,
		role.Name, role.DisplayName, role.Description)
	if err != nil {
		r.logger.Error("Failed to create role", zap.String("role", role.Name), zap.Error(err))
		return fmt.Errorf("failed to create role: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	role.ID = id
	return nil
}

// CreateUser inserts the user and links its roles by name
func (r *UserRepository) CreateUser(ctx context.Context, user *entity.User) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	result, err := exec.ExecContext(ctx, `
		INSERT INTO users (email, name, department, unit, manager_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.Name, user.Department, user.Unit, nullInt64(user.ManagerID), user.Active, user.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id

	for _, role := range user.Roles {
		res, err := exec.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT ?, id FROM roles WHERE name = ?`, user.ID, role)
		if err != nil {
			return fmt.Errorf("failed to assign role %s: %w", role, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("failed to assign role %s: role does not exist", role)
		}
	}

	return nil
}

func (r *UserRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.User, error) {
	users, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

func (r *UserRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		var managerID sql.NullInt64
		var roles string

		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Department, &u.Unit,
			&managerID, &u.Active, &u.CreatedAt, &roles); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		u.ManagerID = int64Ptr(managerID)
		u.Roles = splitRoles(roles)
		users = append(users, &u)
	}

	return users, rows.Err()
}

func splitRoles(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

var _ port.UserDirectory = (*UserRepository)(nil)
