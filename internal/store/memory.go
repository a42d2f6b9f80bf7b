package store

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"rasd/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	depot     *model.Node
	tanks     map[string]model.Tank
	tankOrder []string
	forecasts map[string]model.ForecastRecord
	histories map[string]*model.SensorHistory
	trucks    []model.Truck
	closures  []model.ClosurePair
	plans     map[string]model.Plan
	planOrder []string // oldest first
	subs      map[string]model.Subscription

	deliveries map[string]*memDelivery
	deliverSeq []string
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	Done          bool
}

func NewMemory() *Memory {
	return &Memory{
		tanks:      map[string]model.Tank{},
		forecasts:  map[string]model.ForecastRecord{},
		histories:  map[string]*model.SensorHistory{},
		plans:      map[string]model.Plan{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) UpsertTanks(ctx context.Context, depot *model.Node, tanks []model.Tank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if depot != nil {
		d := *depot
		d.ID = model.DepotID
		m.depot = &d
	}
	for _, t := range tanks {
		if _, ok := m.tanks[t.TankID]; !ok {
			m.tankOrder = append(m.tankOrder, t.TankID)
		}
		m.tanks[t.TankID] = t
	}
	return nil
}

func (m *Memory) ListTanks(ctx context.Context) (*model.Node, []model.Tank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Tank, 0, len(m.tankOrder))
	for _, id := range m.tankOrder {
		out = append(out, m.tanks[id])
	}
	var depot *model.Node
	if m.depot != nil {
		d := *m.depot
		depot = &d
	}
	return depot, out, nil
}

func (m *Memory) SaveForecasts(ctx context.Context, recs []model.ForecastRecord, historyWindow int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if historyWindow <= 0 {
		historyWindow = 192
	}
	for _, r := range recs {
		m.forecasts[r.TankID] = r
		h := m.histories[r.TankID]
		if h == nil {
			h = &model.SensorHistory{}
			m.histories[r.TankID] = h
		}
		h.Gas = appendWindow(h.Gas, r.GasNow, historyWindow)
		h.TempC = appendWindow(h.TempC, r.TempC, historyWindow)
		h.Hum = appendWindow(h.Hum, r.HumPct, historyWindow)
	}
	return nil
}

// appendWindow drops NaN readings: a missing sensor field must not consume a
// window slot or skew the reference median.
func appendWindow(xs []float64, v float64, n int) []float64 {
	if math.IsNaN(v) {
		return xs
	}
	xs = append(xs, v)
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	return xs
}

func (m *Memory) LatestForecasts(ctx context.Context) ([]model.ForecastRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ForecastRecord, 0, len(m.forecasts))
	for _, id := range m.tankOrder {
		if r, ok := m.forecasts[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Histories(ctx context.Context) (map[string]model.SensorHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.SensorHistory, len(m.histories))
	for id, h := range m.histories {
		out[id] = model.SensorHistory{
			Gas:   append([]float64(nil), h.Gas...),
			TempC: append([]float64(nil), h.TempC...),
			Hum:   append([]float64(nil), h.Hum...),
		}
	}
	return out, nil
}

func (m *Memory) UpsertTrucks(ctx context.Context, trucks []model.Truck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trucks = append([]model.Truck(nil), trucks...)
	return nil
}

func (m *Memory) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Truck(nil), m.trucks...), nil
}

func (m *Memory) SetClosures(ctx context.Context, pairs []model.ClosurePair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closures = append([]model.ClosurePair(nil), pairs...)
	return nil
}

func (m *Memory) ListClosures(ctx context.Context) ([]model.ClosurePair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ClosurePair(nil), m.closures...), nil
}

func (m *Memory) SavePlan(ctx context.Context, p model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[p.ID]; !ok {
		m.planOrder = append(m.planOrder, p.ID)
	}
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, limit int) ([]model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := []model.Plan{}
	for i := len(m.planOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.plans[m.planOrder[i]])
	}
	return out, nil
}

func (m *Memory) LatestPlan(ctx context.Context) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.planOrder) == 0 {
		return model.Plan{}, ErrNotFound
	}
	return m.plans[m.planOrder[len(m.planOrder)-1]], nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[sub.ID] = sub
	return sub, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		s.Secret = ""
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subID, eventType, url, secret string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subID, EventType: eventType, URL: url, Secret: secret, Body: body},
		NextAttemptAt:   time.Now(),
	}
	m.deliverSeq = append(m.deliverSeq, id)
	return id, nil
}

func (m *Memory) DueWebhooks(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := []WebhookDelivery{}
	for _, id := range m.deliverSeq {
		d := m.deliveries[id]
		if d == nil || d.Done || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	if success || nextAttemptAt == nil {
		d.Done = true
		return nil
	}
	d.NextAttemptAt = *nextAttemptAt
	return nil
}
