package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu           sync.Mutex
	watches      []domain.CompetitorWatch
	observations map[pairKey][]domain.PriceObservation
	alerts       map[string]domain.Alert
	nextID       uint

	listErr   error
	recentErr error
	appendErr error
	createErr error
}

func newMemoryStore(watches ...domain.CompetitorWatch) *memoryStore {
	return &memoryStore{
		watches:      watches,
		observations: make(map[pairKey][]domain.PriceObservation),
		alerts:       make(map[string]domain.Alert),
	}
}

func (s *memoryStore) seed(productID, competitorID uint, values ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{productID: productID, competitorID: competitorID}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, value := range values {
		s.nextID++
		s.observations[key] = append(s.observations[key], domain.PriceObservation{
			ID:           s.nextID,
			ProductID:    productID,
			CompetitorID: competitorID,
			Price:        decimal.NewFromFloat(value),
			ObservedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
}

func (s *memoryStore) RecentObservations(ctx context.Context, productID, competitorID uint, limit int) ([]domain.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	series := s.observations[pairKey{productID: productID, competitorID: competitorID}]
	out := make([]domain.PriceObservation, 0, limit)
	for i := len(series) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

func (s *memoryStore) AppendObservation(ctx context.Context, observation *domain.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.nextID++
	observation.ID = s.nextID
	key := pairKey{productID: observation.ProductID, competitorID: observation.CompetitorID}
	s.observations[key] = append(s.observations[key], *observation)
	return nil
}

func (s *memoryStore) CreateAlertIfAbsent(ctx context.Context, alert *domain.Alert, key string) (*domain.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if existing, ok := s.alerts[key]; ok {
		return &existing, false, nil
	}
	s.nextID++
	stored := *alert
	stored.ID = s.nextID
	stored.CreatedAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	s.alerts[key] = stored
	return &stored, true, nil
}

func (s *memoryStore) ListActiveCompetitorsWithProducts(ctx context.Context) ([]domain.CompetitorWatch, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.watches, nil
}

func (s *memoryStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *memoryStore) series(productID, competitorID uint) []domain.PriceObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PriceObservation(nil), s.observations[pairKey{productID: productID, competitorID: competitorID}]...)
}

type fakeSource struct {
	mu    sync.Mutex
	calls map[uint]int
	fetch func(pair domain.Pair, call int) (domain.PriceQuote, error)
}

func newFakeSource(fetch func(pair domain.Pair, call int) (domain.PriceQuote, error)) *fakeSource {
	return &fakeSource{calls: make(map[uint]int), fetch: fetch}
}

func (s *fakeSource) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	s.mu.Lock()
	s.calls[pair.ProductID]++
	call := s.calls[pair.ProductID]
	s.mu.Unlock()
	return s.fetch(pair, call)
}

func (s *fakeSource) callsFor(productID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[productID]
}

type recordingDistributor struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (d *recordingDistributor) Distribute(ctx context.Context, alert domain.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
}

func (d *recordingDistributor) delivered() []domain.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Alert(nil), d.alerts...)
}

type memoryDirectory struct {
	subscribers []domain.SubscriberPreference
	err         error
}

func (d memoryDirectory) ListSubscribersAtOrAbove(ctx context.Context, severity domain.Significance) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	var emails []string
	for _, subscriber := range d.subscribers {
		if subscriber.MinSignificance.Includes(severity) {
			emails = append(emails, subscriber.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

type sentMail struct {
	recipients []string
	subject    string
	body       string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{recipients: recipients, subject: subject, body: body})
	return nil
}
