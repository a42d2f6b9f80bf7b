package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rasd/internal/model"
)

// Postgres persists the planning state via database/sql over the pgx driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if missing. Dev helper; production deploys run
// migrations out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS depot (id INT PRIMARY KEY CHECK (id = 1), lat DOUBLE PRECISION NOT NULL, lon DOUBLE PRECISION NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS tanks (tank_id TEXT PRIMARY KEY, lat DOUBLE PRECISION NOT NULL, lon DOUBLE PRECISION NOT NULL, pos SERIAL)`,
		`CREATE TABLE IF NOT EXISTS forecasts (tank_id TEXT PRIMARY KEY, tto_hours DOUBLE PRECISION, level_pct DOUBLE PRECISION, gas_now DOUBLE PRECISION, temp_c DOUBLE PRECISION, hum_pct DOUBLE PRECISION, ts TIMESTAMPTZ)`,
		`CREATE TABLE IF NOT EXISTS readings (id BIGSERIAL PRIMARY KEY, tank_id TEXT NOT NULL, gas DOUBLE PRECISION, temp_c DOUBLE PRECISION, hum_pct DOUBLE PRECISION, ts TIMESTAMPTZ DEFAULT now())`,
		`CREATE INDEX IF NOT EXISTS readings_tank_idx ON readings (tank_id, id)`,
		`CREATE TABLE IF NOT EXISTS trucks (truck_id TEXT PRIMARY KEY, capacity DOUBLE PRECISION NOT NULL, shift_min DOUBLE PRECISION NOT NULL, pos INT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS closures (from_node TEXT NOT NULL, to_node TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS plans (id UUID PRIMARY KEY, created_at TIMESTAMPTZ NOT NULL, source TEXT NOT NULL, degraded BOOL NOT NULL, payload JSONB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (id UUID PRIMARY KEY, url TEXT NOT NULL, events JSONB NOT NULL, secret TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (id UUID PRIMARY KEY, subscription_id UUID NOT NULL, event_type TEXT NOT NULL, url TEXT NOT NULL, secret TEXT NOT NULL, body BYTEA NOT NULL, attempts INT NOT NULL DEFAULT 0, next_attempt_at TIMESTAMPTZ NOT NULL, done BOOL NOT NULL DEFAULT FALSE)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) UpsertTanks(ctx context.Context, depot *model.Node, tanks []model.Tank) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if depot != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO depot (id, lat, lon) VALUES (1,$1,$2)
			ON CONFLICT (id) DO UPDATE SET lat=EXCLUDED.lat, lon=EXCLUDED.lon`, depot.Lat, depot.Lon)
		if err != nil {
			return err
		}
	}
	for _, t := range tanks {
		_, err = tx.ExecContext(ctx, `INSERT INTO tanks (tank_id, lat, lon) VALUES ($1,$2,$3)
			ON CONFLICT (tank_id) DO UPDATE SET lat=EXCLUDED.lat, lon=EXCLUDED.lon`, t.TankID, t.Lat, t.Lon)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListTanks(ctx context.Context) (*model.Node, []model.Tank, error) {
	var depot *model.Node
	var lat, lon float64
	err := p.db.QueryRowContext(ctx, `SELECT lat, lon FROM depot WHERE id=1`).Scan(&lat, &lon)
	switch {
	case err == nil:
		depot = &model.Node{ID: model.DepotID, Lat: lat, Lon: lon}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT tank_id, lat, lon FROM tanks ORDER BY pos`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var tanks []model.Tank
	for rows.Next() {
		var t model.Tank
		if err := rows.Scan(&t.TankID, &t.Lat, &t.Lon); err != nil {
			return nil, nil, err
		}
		tanks = append(tanks, t)
	}
	return depot, tanks, rows.Err()
}

func (p *Postgres) SaveForecasts(ctx context.Context, recs []model.ForecastRecord, historyWindow int) error {
	if historyWindow <= 0 {
		historyWindow = 192
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range recs {
		ts := r.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO forecasts (tank_id, tto_hours, level_pct, gas_now, temp_c, hum_pct, ts)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (tank_id) DO UPDATE SET tto_hours=EXCLUDED.tto_hours, level_pct=EXCLUDED.level_pct,
				gas_now=EXCLUDED.gas_now, temp_c=EXCLUDED.temp_c, hum_pct=EXCLUDED.hum_pct, ts=EXCLUDED.ts`,
			r.TankID, r.TTOHours, r.LevelPct, r.GasNow, r.TempC, r.HumPct, ts)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO readings (tank_id, gas, temp_c, hum_pct, ts) VALUES ($1,$2,$3,$4,$5)`,
			r.TankID, r.GasNow, r.TempC, r.HumPct, ts)
		if err != nil {
			return err
		}
		// Keep the rolling window bounded per tank.
		_, err = tx.ExecContext(ctx, `DELETE FROM readings WHERE tank_id=$1 AND id NOT IN
			(SELECT id FROM readings WHERE tank_id=$1 ORDER BY id DESC LIMIT $2)`, r.TankID, historyWindow)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) LatestForecasts(ctx context.Context) ([]model.ForecastRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT f.tank_id, f.tto_hours, f.level_pct, f.gas_now, f.temp_c, f.hum_pct, f.ts
		FROM forecasts f JOIN tanks t ON t.tank_id = f.tank_id ORDER BY t.pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ForecastRecord
	for rows.Next() {
		var r model.ForecastRecord
		if err := rows.Scan(&r.TankID, &r.TTOHours, &r.LevelPct, &r.GasNow, &r.TempC, &r.HumPct, &r.TS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Histories(ctx context.Context) (map[string]model.SensorHistory, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT tank_id, gas, temp_c, hum_pct FROM readings ORDER BY tank_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]model.SensorHistory{}
	for rows.Next() {
		var id string
		var gas, temp, hum float64
		if err := rows.Scan(&id, &gas, &temp, &hum); err != nil {
			return nil, err
		}
		h := out[id]
		h.Gas = append(h.Gas, gas)
		h.TempC = append(h.TempC, temp)
		h.Hum = append(h.Hum, hum)
		out[id] = h
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertTrucks(ctx context.Context, trucks []model.Truck) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM trucks`); err != nil {
		return err
	}
	for i, t := range trucks {
		_, err = tx.ExecContext(ctx, `INSERT INTO trucks (truck_id, capacity, shift_min, pos) VALUES ($1,$2,$3,$4)`,
			t.TruckID, t.Capacity, t.ShiftMin, i)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListTrucks(ctx context.Context) ([]model.Truck, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT truck_id, capacity, shift_min FROM trucks ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Truck
	for rows.Next() {
		var t model.Truck
		if err := rows.Scan(&t.TruckID, &t.Capacity, &t.ShiftMin); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) SetClosures(ctx context.Context, pairs []model.ClosurePair) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM closures`); err != nil {
		return err
	}
	for _, c := range pairs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO closures (from_node, to_node) VALUES ($1,$2)`, c.From, c.To); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListClosures(ctx context.Context) ([]model.ClosurePair, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT from_node, to_node FROM closures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ClosurePair
	for rows.Next() {
		var c model.ClosurePair
		if err := rows.Scan(&c.From, &c.To); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) SavePlan(ctx context.Context, pl model.Plan) error {
	payload, err := json.Marshal(pl)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO plans (id, created_at, source, degraded, payload) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET payload=EXCLUDED.payload`, pl.ID, pl.CreatedAt, pl.Source, pl.Degraded, payload)
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM plans WHERE id=$1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, ErrNotFound
	}
	if err != nil {
		return model.Plan{}, err
	}
	var pl model.Plan
	err = json.Unmarshal(payload, &pl)
	return pl, err
}

func (p *Postgres) ListPlans(ctx context.Context, limit int) ([]model.Plan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM plans ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Plan
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var pl model.Plan
		if err := json.Unmarshal(payload, &pl); err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *Postgres) LatestPlan(ctx context.Context) (model.Plan, error) {
	plans, err := p.ListPlans(ctx, 1)
	if err != nil {
		return model.Plan{}, err
	}
	if len(plans) == 0 {
		return model.Plan{}, ErrNotFound
	}
	return plans[0], nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		sub.ID, sub.URL, events, sub.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(events, &s.Events)
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subID, eventType, url, secret string, body []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, body, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())`, id, subID, eventType, url, secret, body)
	return id, err
}

func (p *Postgres) DueWebhooks(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, subscription_id, event_type, url, secret, body, attempts
		FROM webhook_deliveries WHERE NOT done AND next_attempt_at <= $1 ORDER BY next_attempt_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Body, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	if success || nextAttemptAt == nil {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET done=TRUE, attempts=attempts+1 WHERE id=$1`, id)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=$2 WHERE id=$1`, id, *nextAttemptAt)
	return err
}

// Ping reports database connectivity for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
