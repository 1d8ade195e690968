package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/domain/event"
)

// Mock implementations

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {}
func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.errors = append(l.errors, msg)
}

type recordingPublisher struct {
	events []*event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...*event.Event) {
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []event.Type {
	types := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// memUsers is an in-memory user directory
type memUsers struct {
	users map[int64]*entity.User
	roles map[string]bool
}

func newMemUsers(users ...*entity.User) *memUsers {
	m := &memUsers{users: map[int64]*entity.User{}, roles: map[string]bool{}}
	for _, u := range users {
		m.users[u.ID] = u
		for _, r := range u.Roles {
			m.roles[r] = true
		}
	}
	return m
}

func (m *memUsers) sorted() []*entity.User {
	out := make([]*entity.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memUsers) filter(keep func(u *entity.User) bool) []*entity.User {
	var out []*entity.User
	for _, u := range m.sorted() {
		if u.Active && keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func (m *memUsers) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) FindActiveByRole(ctx context.Context, role string) ([]*entity.User, error) {
	return m.filter(func(u *entity.User) bool { return u.HasRole(role) }), nil
}

func (m *memUsers) FindActiveByRoleInDepartment(ctx context.Context, role, department string) ([]*entity.User, error) {
	return m.filter(func(u *entity.User) bool { return u.HasRole(role) && u.Department == department }), nil
}

func (m *memUsers) FindActiveByRoleInUnit(ctx context.Context, role, unit string) ([]*entity.User, error) {
	return m.filter(func(u *entity.User) bool { return u.HasRole(role) && u.Unit == unit }), nil
}

func (m *memUsers) GetManager(ctx context.Context, userID int64) (*entity.User, error) {
	u := m.users[userID]
	if u == nil || u.ManagerID == nil {
		return nil, nil
	}
	return m.users[*u.ManagerID], nil
}

func (m *memUsers) RoleExists(ctx context.Context, role string) (bool, error) {
	return m.roles[role], nil
}

func (m *memUsers) Count(ctx context.Context) (int, error) {
	return len(m.users), nil
}

func (m *memUsers) CreateRole(ctx context.Context, role *entity.Role) error {
	m.roles[role.Name] = true
	return nil
}

func (m *memUsers) CreateUser(ctx context.Context, user *entity.User) error {
	user.ID = int64(len(m.users) + 1)
	m.users[user.ID] = user
	return nil
}

// memTemplates is an in-memory template repository
type memTemplates struct {
	templates []*entity.WorkflowTemplate
	createErr error
}

func (m *memTemplates) Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	if m.createErr != nil {
		return m.createErr
	}
	tmpl.ID = int64(len(m.templates) + 1)
	m.templates = append(m.templates, tmpl)
	return nil
}

func (m *memTemplates) Update(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	for i, t := range m.templates {
		if t.ID == tmpl.ID {
			m.templates[i] = tmpl
			return nil
		}
	}
	return nil
}

func (m *memTemplates) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	for _, t := range m.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTemplates) GetByName(ctx context.Context, name string) (*entity.WorkflowTemplate, error) {
	for _, t := range m.templates {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memTemplates) ExistsByName(ctx context.Context, name string) (bool, error) {
	t, _ := m.GetByName(ctx, name)
	return t != nil, nil
}

func (m *memTemplates) ListActive(ctx context.Context) ([]*entity.WorkflowTemplate, error) {
	return m.ListByActive(ctx, true)
}

func (m *memTemplates) ListByActive(ctx context.Context, active bool) ([]*entity.WorkflowTemplate, error) {
	var out []*entity.WorkflowTemplate
	for _, t := range m.templates {
		if t.Active == active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTemplates) ListAll(ctx context.Context) ([]*entity.WorkflowTemplate, error) {
	return m.templates, nil
}

func (m *memTemplates) ListActiveByCategory(ctx context.Context, category string) ([]*entity.WorkflowTemplate, error) {
	var out []*entity.WorkflowTemplate
	for _, t := range m.templates {
		if t.Active && (t.Category == nil || *t.Category == category) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTemplates) Categories(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, t := range m.templates {
		if t.Active && t.Category != nil && !seen[*t.Category] {
			seen[*t.Category] = true
			out = append(out, *t.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memTemplates) SetActive(ctx context.Context, id int64, active bool) error {
	for _, t := range m.templates {
		if t.ID == id {
			t.Active = active
		}
	}
	return nil
}

func (m *memTemplates) Delete(ctx context.Context, id int64) error {
	for i, t := range m.templates {
		if t.ID == id {
			m.templates = append(m.templates[:i], m.templates[i+1:]...)
			return nil
		}
	}
	return nil
}

// memStore keeps requests, steps and history in memory and rolls all three
// back when a transaction function fails
type memStore struct {
	mu       sync.Mutex
	requests map[int64]entity.PurchaseRequest
	steps    map[int64]entity.ApprovalStep
	history  []entity.HistoryEntry
	nextID   int64

	createBatchErr error
	appendErr      error

	// beforeMarkActed runs ahead of the step compare-and-swap
	beforeMarkActed func(stepID int64)
}

func newMemStore() *memStore {
	return &memStore{
		requests: map[int64]entity.PurchaseRequest{},
		steps:    map[int64]entity.ApprovalStep{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	requests := make(map[int64]entity.PurchaseRequest, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	steps := make(map[int64]entity.ApprovalStep, len(s.steps))
	for k, v := range s.steps {
		steps[k] = v
	}
	history := append([]entity.HistoryEntry(nil), s.history...)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.requests, s.steps, s.history = requests, steps, history
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.ID = s.id()
	req.Version = 0
	stored := *req
	stored.Steps = nil
	s.requests[req.ID] = stored
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memStore) list(keep func(r entity.PurchaseRequest) bool) []*entity.PurchaseRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.PurchaseRequest
	for _, r := range s.requests {
		if keep(r) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListByRequester(ctx context.Context, requesterID int64, status string) ([]*entity.PurchaseRequest, error) {
	return s.list(func(r entity.PurchaseRequest) bool {
		return r.RequesterID == requesterID && (status == "" || r.Status == status)
	}), nil
}

func (s *memStore) ListByStatus(ctx context.Context, status string) ([]*entity.PurchaseRequest, error) {
	return s.list(func(r entity.PurchaseRequest) bool { return r.Status == status }), nil
}

func (s *memStore) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.PurchaseRequest, error) {
	s.mu.Lock()
	bound := map[int64]bool{}
	for _, st := range s.steps {
		r := s.requests[st.RequestID]
		if st.ApproverID == approverID && st.Status == entity.StepStatusPending &&
			r.Status == entity.StatusInApproval && r.CurrentStepOrder == st.StepOrder {
			bound[st.RequestID] = true
		}
	}
	s.mu.Unlock()
	return s.list(func(r entity.PurchaseRequest) bool { return bound[r.ID] }), nil
}

func (s *memStore) UpdateStatus(ctx context.Context, upd port.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[upd.RequestID]
	if !ok || r.Version != upd.ExpectedVersion {
		return port.ErrStaleVersion
	}
	r.Status = upd.Status
	r.CurrentStepOrder = upd.CurrentStepOrder
	if upd.TemplateID != nil {
		r.TemplateID = upd.TemplateID
	}
	if upd.RejectionReason != nil {
		r.RejectionReason = *upd.RejectionReason
	}
	if upd.AppendNote != "" {
		if r.Notes == "" {
			r.Notes = upd.AppendNote
		} else {
			r.Notes += "\n" + upd.AppendNote
		}
	}
	if upd.CompletedAt != nil {
		r.CompletedAt = upd.CompletedAt
	}
	if upd.CancelledAt != nil {
		r.CancelledAt = upd.CancelledAt
	}
	r.Version++
	s.requests[r.ID] = r
	return nil
}

func (s *memStore) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if s.createBatchErr != nil {
		return s.createBatchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range steps {
		st.ID = s.id()
		s.steps[st.ID] = *st
	}
	return nil
}

func (s *memStore) ListByRequest(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ApprovalStep
	for _, st := range s.steps {
		if st.RequestID == requestID {
			st := st
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (s *memStore) MarkActed(ctx context.Context, stepID int64, status, comment string, at time.Time) error {
	if s.beforeMarkActed != nil {
		s.beforeMarkActed(stepID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok || st.Status != entity.StepStatusPending {
		return port.ErrStepAlreadyActed
	}
	st.Status = status
	st.Comment = comment
	st.ActionTakenAt = &at
	s.steps[stepID] = st
	return nil
}

// historyRepo exposes the history half of memStore; its method set would
// otherwise collide with the step repository's ListByRequest
type historyRepo struct{ s *memStore }

func (h historyRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if h.s.appendErr != nil {
		return h.s.appendErr
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	entry.ID = int64(len(h.s.history) + 1)
	h.s.history = append(h.s.history, *entry)
	return nil
}

func (h historyRepo) ListByRequest(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	var out []*entity.HistoryEntry
	for _, e := range h.s.history {
		if e.RequestID == requestID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *memStore) stepsOf(requestID int64) []*entity.ApprovalStep {
	steps, _ := s.ListByRequest(context.Background(), requestID)
	return steps
}

func (s *memStore) historyOf(requestID int64) []*entity.HistoryEntry {
	entries, _ := historyRepo{s}.ListByRequest(context.Background(), requestID)
	return entries
}

type mockNotifier struct {
	NotifyFunc func(ctx context.Context, n port.Notification) error
	mu         sync.Mutex
	sent       []port.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) error {
	if m.NotifyFunc != nil {
		if err := m.NotifyFunc(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

type mockExporter struct{}

func (mockExporter) Export(ctx context.Context, req *entity.PurchaseRequest, entries []*entity.HistoryEntry) ([]byte, error) {
	return []byte{byte(len(entries))}, nil
}

func (mockExporter) ContentType() string   { return "application/test" }
func (mockExporter) FileExtension() string { return "bin" }

// Directory fixture

const (
	uTeacher int64 = iota + 1
	uDeptHead
	uCommitteeHead
	uSchoolDirector
	uPurchasing
	uGeneralManager
	uCEO
	uOrphanTeacher
	uOutsider
)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func newDirectory() *memUsers {
	user := func(id int64, role, dept, unit string, manager *int64) *entity.User {
		return &entity.User{
			ID:         id,
			Email:      role + "@school.test",
			Name:       role,
			Department: dept,
			Unit:       unit,
			ManagerID:  manager,
			Active:     true,
			Roles:      []string{role},
		}
	}
	return newMemUsers(
		user(uTeacher, entity.RoleTeacher, "Science", "North", int64Ptr(uDeptHead)),
		user(uDeptHead, entity.RoleDepartmentHead, "Science", "North", int64Ptr(uSchoolDirector)),
		user(uCommitteeHead, entity.RoleCommitteeHead, "Science", "North", int64Ptr(uSchoolDirector)),
		user(uSchoolDirector, entity.RoleSchoolDirector, "", "North", int64Ptr(uGeneralManager)),
		user(uPurchasing, entity.RolePurchasing, "", "", int64Ptr(uGeneralManager)),
		user(uGeneralManager, entity.RoleGeneralManager, "", "", int64Ptr(uCEO)),
		user(uCEO, entity.RoleCEO, "", "", nil),
		user(uOrphanTeacher, entity.RoleTeacher, "Art", "South", nil),
		user(uOutsider, entity.RoleAdmin, "", "", nil),
	)
}
