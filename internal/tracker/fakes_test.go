package tracker

import (
	"context"
	"sort"
	"sync"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/models"

	"github.com/stretchr/testify/mock"
)

// ==========================
// Mock Repository
// ==========================

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Notification, error) {
	args := m.Called(ctx, externalID)
	if n := args.Get(0); n != nil {
		return n.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id, companyID string) (*models.Notification, error) {
	args := m.Called(ctx, id, companyID)
	if n := args.Get(0); n != nil {
		return n.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CountByStatus(ctx context.Context, f models.StatsFilter) (*models.Stats, error) {
	args := m.Called(ctx, f)
	if s := args.Get(0); s != nil {
		return s.(*models.Stats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, f models.HistoryFilter) ([]models.Notification, int, error) {
	args := m.Called(ctx, f)
	var list []models.Notification
	if l := args.Get(0); l != nil {
		list = l.([]models.Notification)
	}
	return list, args.Int(1), args.Error(2)
}

// ==========================
// In-memory repository
// ==========================

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.Notification
}

func newMemoryRepository(records ...models.Notification) *memoryRepository {
	r := &memoryRepository{records: map[string]*models.Notification{}}
	for i := range records {
		n := records[i]
		r.records[n.ID] = &n
	}
	return r
}

func (r *memoryRepository) FindByExternalID(_ context.Context, externalID string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.records {
		if n.ExternalID != nil && *n.ExternalID == externalID {
			cp := *n
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("Notification non trouvée", externalID)
}

func (r *memoryRepository) CompareAndSetStatus(_ context.Context, id string, from, to models.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.records[id]
	if !ok || n.Status != from {
		return false, nil
	}
	n.Status = to
	return true, nil
}

func (r *memoryRepository) Get(_ context.Context, id, companyID string) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.records[id]
	if !ok || (companyID != "" && n.CompanyID != companyID) {
		return nil, errors.NewNotFoundError("Notification non trouvée", id)
	}
	cp := *n
	return &cp, nil
}

func (r *memoryRepository) CountByStatus(_ context.Context, f models.StatsFilter) (*models.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.Stats{}
	for _, n := range r.records {
		if f.CompanyID != "" && n.CompanyID != f.CompanyID {
			continue
		}
		stats.Add(n.Status, 1)
	}
	return stats, nil
}

func (r *memoryRepository) List(_ context.Context, f models.HistoryFilter) ([]models.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []models.Notification
	for _, n := range r.records {
		if f.CompanyID != "" && n.CompanyID != f.CompanyID {
			continue
		}
		all = append(all, *n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := f.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryRepository) put(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[n.ID] = &n
}

func (r *memoryRepository) status(id string) models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Status
}

// ==========================
// Other doubles
// ==========================

type recordingAudit struct {
	mu   sync.Mutex
	docs map[string]interface{}
	err  error
}

func (a *recordingAudit) IndexDocument(_ context.Context, index, id string, doc interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.docs == nil {
		a.docs = map[string]interface{}{}
	}
	a.docs[index+"/"+id] = doc
	return a.err
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) ConfirmSubscription(ctx context.Context, topicARN, token string) (string, error) {
	args := m.Called(ctx, topicARN, token)
	return args.String(0), args.Error(1)
}

func strPtr(s string) *string { return &s }
