package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"notification-workers/internal/common/errors"
	"notification-workers/internal/delivery"
	"notification-workers/internal/document"
	"notification-workers/internal/models"

	"github.com/stretchr/testify/mock"
)

// ==========================
// Mock collaborators
// ==========================

type MockNotifications struct {
	mock.Mock
}

func (m *MockNotifications) Create(ctx context.Context, n *models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifications) MarkSent(ctx context.Context, id, externalID string, sentAt time.Time) error {
	return m.Called(ctx, id, externalID, sentAt).Error(0)
}

func (m *MockNotifications) MarkFailed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockDocuments struct {
	mock.Mock
}

func (m *MockDocuments) FindDocument(ctx context.Context, kind models.DocumentKind, id, companyID string) (*models.Document, error) {
	args := m.Called(ctx, kind, id, companyID)
	if d := args.Get(0); d != nil {
		return d.(*models.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDocuments) AdvanceStatus(ctx context.Context, kind models.DocumentKind, id, from, to string) (bool, error) {
	args := m.Called(ctx, kind, id, from, to)
	return args.Bool(0), args.Error(1)
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, r delivery.Request) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func (m *MockSender) SendWithAttachments(ctx context.Context, email delivery.AttachmentEmail) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockSender) DefaultSender() delivery.Address {
	return delivery.Address{Email: "notifications@zenbilling.com", Name: "ZenBilling Notifications"}
}

func (m *MockSender) Concurrency() int { return 2 }

type MockReadModel struct {
	mock.Mock
}

func (m *MockReadModel) Stats(ctx context.Context, f models.StatsFilter) (*models.Stats, error) {
	args := m.Called(ctx, f)
	if s := args.Get(0); s != nil {
		return s.(*models.Stats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReadModel) History(ctx context.Context, f models.HistoryFilter) (*models.HistoryPage, error) {
	args := m.Called(ctx, f)
	if p := args.Get(0); p != nil {
		return p.(*models.HistoryPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReadModel) Get(ctx context.Context, caller models.Caller, id string) (*models.Notification, error) {
	args := m.Called(ctx, caller, id)
	if n := args.Get(0); n != nil {
		return n.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

// ==========================
// Fakes
// ==========================

type fakeRenderer struct {
	err   error
	calls int32
}

func (f *fakeRenderer) RenderDocument(_ context.Context, doc *models.Document) (*document.Rendered, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &document.Rendered{Filename: doc.Filename(), Content: []byte("%PDF-1.7 " + doc.Number)}, nil
}

// memoryNotifications keeps records in memory for the bulk paths.
type memoryNotifications struct {
	mu      sync.Mutex
	seq     int
	records map[string]*models.Notification
}

func newMemoryNotifications() *memoryNotifications {
	return &memoryNotifications{records: map[string]*models.Notification{}}
}

func (s *memoryNotifications) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	n.ID = fmt.Sprintf("n-%d", s.seq)
	n.Status = models.StatusPending
	cp := *n
	s.records[n.ID] = &cp
	return nil
}

func (s *memoryNotifications) MarkSent(_ context.Context, id, externalID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.records[id]
	n.Status = models.StatusSent
	n.ExternalID = &externalID
	n.SentAt = &sentAt
	return nil
}

func (s *memoryNotifications) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id].Status = models.StatusFailed
	return nil
}

func (s *memoryNotifications) countByStatus() map[models.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[models.Status]int{}
	for _, n := range s.records {
		out[n.Status]++
	}
	return out
}

// fakeSender fails every recipient whose address starts with "fail" and
// tracks the peak number of concurrent calls.
type fakeSender struct {
	concurrency int
	active      int32
	peak        int32
	seq         int32
}

func (f *fakeSender) deliver(to []delivery.Address) (string, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if strings.HasPrefix(to[0].Email, "fail") {
		return "", errors.NewDeliveryFailedError("fake", context.DeadlineExceeded)
	}
	return fmt.Sprintf("msg-%d", atomic.AddInt32(&f.seq, 1)), nil
}

func (f *fakeSender) Send(_ context.Context, r delivery.Request) (string, error) {
	return f.deliver(r.To)
}

func (f *fakeSender) SendWithAttachments(_ context.Context, e delivery.AttachmentEmail) (string, error) {
	return f.deliver(e.To)
}

func (f *fakeSender) DefaultSender() delivery.Address {
	return delivery.Address{Email: "notifications@zenbilling.com", Name: "ZenBilling Notifications"}
}

func (f *fakeSender) Concurrency() int { return f.concurrency }

func strPtr(s string) *string { return &s }
