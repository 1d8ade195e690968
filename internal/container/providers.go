package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/dispatcher"
	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/garyjia/purchase-approval/internal/application/workflow"
	"github.com/garyjia/purchase-approval/internal/config"
	"github.com/garyjia/purchase-approval/internal/infrastructure/export"
	"github.com/garyjia/purchase-approval/internal/infrastructure/notify"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/purchase-approval/internal/infrastructure/seed"
	"github.com/garyjia/purchase-approval/internal/infrastructure/worker"
	"github.com/garyjia/purchase-approval/pkg/auth"
	"github.com/garyjia/purchase-approval/pkg/database"
	"github.com/garyjia/purchase-approval/pkg/expression"
	"github.com/garyjia/purchase-approval/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// WorkflowBundle holds the routing and state machine components.
type WorkflowBundle struct {
	Matcher      service.WorkflowMatcher
	Resolver     service.ApproverResolver
	Materializer service.StepMaterializer
	Engine       workflow.WorkflowEngine
	History      *workflow.HistoryRecorder
}

// ServiceDeps holds dependencies for ProvideServices.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Workflow   *WorkflowBundle
	Conditions *expression.Engine
	Dispatcher dispatcher.Dispatcher
	Notify     *config.NotifyConfig
	Logger     *zap.Logger
}

// ProvideDatabase opens the SQLite store and runs pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(cfg.MigrationsDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Users:     repository.NewUserRepository(sqlDB, logger),
		Templates: repository.NewTemplateRepository(sqlDB, logger),
		Requests:  repository.NewRequestRepository(sqlDB, logger),
		Steps:     repository.NewStepRepository(sqlDB, logger),
		History:   repository.NewHistoryRepository(sqlDB, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewFieldLogger(logger))), nil
}

// ProvideWorkflow builds matcher, resolver, materializer and the state machine engine.
func ProvideWorkflow(
	repos *RepositoryBundle,
	conditions *expression.Engine,
	fallback service.FallbackPolicy,
	logger *zap.Logger,
) (*WorkflowBundle, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if err := fallback.Validate(); err != nil {
		return nil, err
	}

	history := workflow.NewHistoryRecorder(repos.History)
	resolver := service.NewApproverResolver(repos.Users)

	return &WorkflowBundle{
		Matcher:      service.NewWorkflowMatcher(repos.Templates, conditions, utils.NewFieldLogger(logger)),
		Resolver:     resolver,
		Materializer: service.NewStepMaterializer(repos.Users, resolver, fallback),
		Engine:       workflow.NewEngine(repos.Requests, history),
		History:      history,
	}, nil
}

// ProvideServices creates the application services and registers the
// notification handlers on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Workflow == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	svcLogger := utils.NewFieldLogger(deps.Logger)
	repos := deps.Repos

	notifications := service.NewNotificationService(ProvideNotifier(deps.Notify, repos.Users, deps.Logger), svcLogger)
	notifications.Register(deps.Dispatcher)

	approval := service.NewApprovalService(service.ApprovalDeps{
		Requests:     repos.Requests,
		Steps:        repos.Steps,
		Users:        repos.Users,
		Matcher:      deps.Workflow.Matcher,
		Materializer: deps.Workflow.Materializer,
		Engine:       deps.Workflow.Engine,
		History:      deps.Workflow.History,
		Exporter:     export.NewXLSXExporter(deps.Logger),
		TxManager:    deps.TxManager,
		Publisher:    deps.Dispatcher,
		Logger:       svcLogger,
	})

	templates := service.NewTemplateService(repos.Templates, repos.Users, deps.Workflow.Matcher, deps.Conditions, svcLogger)

	return &ServiceBundle{
		Approval:     approval,
		Template:     templates,
		Notification: notifications,
	}, nil
}

// ProvideNotifier picks Lark delivery when configured and the log otherwise.
func ProvideNotifier(cfg *config.NotifyConfig, users port.UserDirectory, logger *zap.Logger) port.Notifier {
	if cfg != nil && cfg.Lark.Enabled {
		logger.Info("Notifications delivered through Lark")
		messenger := notify.NewLarkMessenger(notify.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		})
		return notify.NewLarkNotifier(messenger, users, logger)
	}
	return notify.NewLogNotifier(users, logger)
}

// ProvideTokenManager creates the bearer token manager.
func ProvideTokenManager(cfg *config.AuthConfig) (*auth.TokenManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}
	return auth.NewTokenManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
}

// ProvideWorkers registers the background jobs. The backlog reporter only
// runs when metrics are exposed.
func ProvideWorkers(cfg *config.MetricsConfig, repos *RepositoryBundle, logger *zap.Logger) (*worker.Manager, error) {
	manager := worker.NewManager(logger)
	if cfg.Enabled {
		reporter := worker.NewBacklogReporter(repos.Requests, cfg.BacklogInterval, logger)
		if err := manager.Register(reporter); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// RunSeed applies the seed file when seeding is enabled.
func RunSeed(ctx context.Context, cfg *config.SeedConfig, repos *RepositoryBundle, tx port.TransactionManager,
	templates service.TemplateService, logger *zap.Logger) error {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	data, err := seed.Load(cfg.Path)
	if err != nil {
		return err
	}

	seeder := seed.NewSeeder(repos.Users, repos.Templates, templates, tx, logger)
	return seeder.Apply(ctx, data)
}
