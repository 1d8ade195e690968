package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Data is the contents of a seed file
type Data struct {
	Roles     []Role     `yaml:"roles"`
	Users     []User     `yaml:"users"`
	Templates []Template `yaml:"templates"`
}

// Role seeds one directory role
type Role struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// User seeds one directory user. Manager refers to an email listed earlier.
type User struct {
	Email      string   `yaml:"email"`
	Name       string   `yaml:"name"`
	Department string   `yaml:"department"`
	Unit       string   `yaml:"unit"`
	Manager    string   `yaml:"manager"`
	Roles      []string `yaml:"roles"`
	Inactive   bool     `yaml:"inactive"`
}

// Template seeds one workflow template
type Template struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	MinAmount   *string `yaml:"min_amount"`
	MaxAmount   *string `yaml:"max_amount"`
	Category    *string `yaml:"category"`
	Condition   string  `yaml:"condition"`
	System      bool    `yaml:"system"`
	Steps       []Step  `yaml:"steps"`
}

// Step seeds one step definition. User refers to a seeded email.
type Step struct {
	Order        int    `yaml:"order"`
	Name         string `yaml:"name"`
	Strategy     string `yaml:"strategy"`
	Role         string `yaml:"role"`
	User         string `yaml:"user"`
	Level        string `yaml:"level"`
	TimeoutHours *int   `yaml:"timeout_hours"`
	Optional     bool   `yaml:"optional"`
	CanDelegate  bool   `yaml:"can_delegate"`
}

// Load reads a seed file from path
func Load(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes seed YAML
func Parse(raw []byte) (*Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed data: %w", err)
	}
	return &data, nil
}

// Seeder writes seed data into an empty directory and template catalog
type Seeder struct {
	users     port.UserDirectory
	templates port.TemplateRepository
	admin     service.TemplateService
	txManager port.TransactionManager
	logger    *zap.Logger
	now       func() time.Time
}

// NewSeeder creates a new Seeder
func NewSeeder(
	users port.UserDirectory,
	templates port.TemplateRepository,
	admin service.TemplateService,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		users:     users,
		templates: templates,
		admin:     admin,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply seeds the directory when it has no users, then adds every template
// whose name is not taken yet. Templates go through the same validation as
// templates created over the API.
func (s *Seeder) Apply(ctx context.Context, data *Data) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}

	if count == 0 {
		if err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.seedDirectory(txCtx, data)
		}); err != nil {
			return err
		}
		s.logger.Info("Directory seeded",
			zap.Int("roles", len(data.Roles)),
			zap.Int("users", len(data.Users)))
	} else {
		s.logger.Info("Directory already populated, skipping user seed", zap.Int("users", count))
	}

	created := 0
	for _, t := range data.Templates {
		exists, err := s.templates.ExistsByName(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("failed to check template %q: %w", t.Name, err)
		}
		if exists {
			continue
		}

		tmpl, err := s.toTemplate(ctx, t)
		if err != nil {
			return err
		}
		if _, err := s.admin.Create(ctx, tmpl); err != nil {
			return fmt.Errorf("failed to seed template %q: %w", t.Name, err)
		}
		created++
	}

	s.logger.Info("Templates seeded", zap.Int("created", created), zap.Int("listed", len(data.Templates)))
	return nil
}

func (s *Seeder) seedDirectory(ctx context.Context, data *Data) error {
	for _, r := range data.Roles {
		role := &entity.Role{Name: r.Name, DisplayName: r.DisplayName, Description: r.Description}
		if err := s.users.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
	}

	for _, u := range data.Users {
		if err := utils.ValidateEmail(u.Email); err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		user := &entity.User{
			Email:      u.Email,
			Name:       u.Name,
			Department: u.Department,
			Unit:       u.Unit,
			Active:     !u.Inactive,
			Roles:      u.Roles,
			CreatedAt:  s.now(),
		}
		if u.Manager != "" {
			manager, err := s.users.FindByEmail(ctx, u.Manager)
			if err != nil {
				return fmt.Errorf("failed to find manager %s: %w", u.Manager, err)
			}
			if manager == nil {
				return fmt.Errorf("manager %s of %s must be listed before it", u.Manager, u.Email)
			}
			user.ManagerID = &manager.ID
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
	}
	return nil
}

func (s *Seeder) toTemplate(ctx context.Context, t Template) (*entity.WorkflowTemplate, error) {
	tmpl := &entity.WorkflowTemplate{
		Name:        t.Name,
		Description: t.Description,
		Active:      true,
		Category:    t.Category,
		Condition:   t.Condition,
		IsSystem:    t.System,
	}

	var err error
	if tmpl.MinAmount, err = parseAmount(t.MinAmount); err != nil {
		return nil, fmt.Errorf("template %q min_amount: %w", t.Name, err)
	}
	if tmpl.MaxAmount, err = parseAmount(t.MaxAmount); err != nil {
		return nil, fmt.Errorf("template %q max_amount: %w", t.Name, err)
	}

	for _, st := range t.Steps {
		def := entity.StepDefinition{
			StepOrder:     st.Order,
			Name:          st.Name,
			Strategy:      entity.ApproverStrategyType(st.Strategy),
			ApproverRole:  st.Role,
			ApprovalLevel: st.Level,
			IsRequired:    !st.Optional,
			CanDelegate:   st.CanDelegate,
			TimeoutHours:  st.TimeoutHours,
			Active:        true,
		}
		if st.User != "" {
			user, err := s.users.FindByEmail(ctx, st.User)
			if err != nil {
				return nil, fmt.Errorf("failed to find user %s: %w", st.User, err)
			}
			if user == nil {
				return nil, fmt.Errorf("template %q step %d: user %s is not seeded", t.Name, st.Order, st.User)
			}
			def.ApproverUserID = &user.ID
		}
		tmpl.Steps = append(tmpl.Steps, def)
	}
	return tmpl, nil
}

func parseAmount(s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
