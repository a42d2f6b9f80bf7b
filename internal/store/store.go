package store

import (
	"context"
	"errors"
	"time"

	"rasd/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence interface used by the API server.
type Store interface {
	// Tank registry and depot
	UpsertTanks(ctx context.Context, depot *model.Node, tanks []model.Tank) error
	ListTanks(ctx context.Context) (*model.Node, []model.Tank, error)

	// Forecast/sensor feed
	SaveForecasts(ctx context.Context, recs []model.ForecastRecord, historyWindow int) error
	LatestForecasts(ctx context.Context) ([]model.ForecastRecord, error)
	Histories(ctx context.Context) (map[string]model.SensorHistory, error)

	// Fleet and closures
	UpsertTrucks(ctx context.Context, trucks []model.Truck) error
	ListTrucks(ctx context.Context) ([]model.Truck, error)
	SetClosures(ctx context.Context, pairs []model.ClosurePair) error
	ListClosures(ctx context.Context) ([]model.ClosurePair, error)

	// Plans
	SavePlan(ctx context.Context, p model.Plan) error
	GetPlan(ctx context.Context, id string) (model.Plan, error)
	ListPlans(ctx context.Context, limit int) ([]model.Plan, error)
	LatestPlan(ctx context.Context) (model.Plan, error)

	// Webhook subscriptions and delivery queue
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	EnqueueWebhook(ctx context.Context, subID, eventType, url, secret string, body []byte) (string, error)
	DueWebhooks(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
}

// WebhookDelivery is one queued outbound delivery attempt.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Body           []byte
	Attempts       int
}
