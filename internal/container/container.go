// Package container wires the purchase approval service together and owns
// the lifecycle of its components.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/purchase-approval/internal/application/dispatcher"
	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/application/service"
	"github.com/garyjia/purchase-approval/internal/config"
	"github.com/garyjia/purchase-approval/internal/infrastructure/worker"
	"github.com/garyjia/purchase-approval/pkg/auth"
	"github.com/garyjia/purchase-approval/pkg/database"
	"github.com/garyjia/purchase-approval/pkg/expression"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	txManager    port.TransactionManager
	repositories *RepositoryBundle

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   *WorkflowBundle
	services   *ServiceBundle
	tokens     *auth.TokenManager
	workers    *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Users     port.UserDirectory
	Templates port.TemplateRepository
	Requests  port.RequestRepository
	Steps     port.StepRepository
	History   port.HistoryRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Approval     service.ApprovalService
	Template     service.TemplateService
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. Event dispatcher
// 3. Workflow components
// 4. Application services and notification handlers
// 5. Auth
// 6. Seed data
// 7. Background workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp

	conditions := expression.NewEngine()
	wf, err := ProvideWorkflow(c.repositories, conditions, c.config.Workflow.Fallback, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.workflow = wf
	c.logger.Info("Workflow components initialized")

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Workflow:   wf,
		Conditions: conditions,
		Dispatcher: c.dispatcher,
		Notify:     &c.config.Notify,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	tokens, err := ProvideTokenManager(&c.config.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	c.tokens = tokens

	if err := RunSeed(ctx, &c.config.Seed, c.repositories, c.txManager, c.services.Template, c.logger); err != nil {
		return fmt.Errorf("failed to seed data: %w", err)
	}

	workers, err := ProvideWorkers(&c.config.Metrics, c.repositories, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	if err := workers.StartAll(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.workers = workers

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// Drain in-flight notifications before the store goes away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	mark := func(name string, ok bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: ok, Message: msg}
		if !ok {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		mark("database", false, "not initialized")
	default:
		if err := c.db.PingContext(ctx); err != nil {
			mark("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			mark("database", true, "")
		}
	}

	if c.dispatcher != nil && !c.closed.Load() {
		mark("dispatcher", true, "")
	} else {
		mark("dispatcher", false, "not running")
	}

	if c.workers != nil && c.workers.IsRunning() {
		mark("workers", true, fmt.Sprintf("%d running", c.workers.Count()))
	} else {
		mark("workers", false, "not running")
	}

	if c.services != nil {
		mark("services", true, "")
	} else {
		mark("services", false, "not initialized")
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		c.db.Close()
		return err
	}
	c.repositories = repos
	return nil
}

// Getters for accessing container components

// TxManager returns the transaction manager.
func (c *Container) TxManager() port.TransactionManager {
	return c.txManager
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workflow returns the routing and state machine components.
func (c *Container) Workflow() *WorkflowBundle {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Tokens returns the bearer token manager.
func (c *Container) Tokens() *auth.TokenManager {
	return c.tokens
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
