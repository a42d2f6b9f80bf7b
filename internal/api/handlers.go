package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rasd/internal/model"
	"rasd/internal/pipeline"
	"rasd/internal/plan"
	"rasd/internal/store"
)

// TanksHandler handles PUT/GET /v1/tanks
func (s *Server) TanksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		if !s.requireOperator(w, r) {
			return
		}
		var req TankRegistry
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateTanks(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid tank registry", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.UpsertTanks(r.Context(), req.Depot, req.Tanks); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Upsert tanks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tanks": len(req.Tanks), "depot": req.Depot != nil})
	case http.MethodGet:
		depot, tanks, err := s.Store.ListTanks(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List tanks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"depot": depot, "tanks": tanks})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ForecastsHandler handles POST /v1/forecasts
func (s *Server) ForecastsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireOperator(w, r) {
		return
	}
	var req struct {
		Records []model.ForecastRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	for _, rec := range req.Records {
		if rec.TankID == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid forecast", "record with empty tankId", r.URL.Path)
			return
		}
	}
	if err := s.Store.SaveForecasts(r.Context(), req.Records, s.Cfg.Routing.HistoryWindow); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save forecasts failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Records)})
}

// TrucksHandler handles PUT/GET /v1/trucks
func (s *Server) TrucksHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		if !s.requireOperator(w, r) {
			return
		}
		var req struct {
			Trucks []model.Truck `json:"trucks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateTrucks(req.Trucks); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid fleet", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.UpsertTrucks(r.Context(), req.Trucks); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Upsert trucks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trucks": len(req.Trucks)})
	case http.MethodGet:
		trucks, err := s.Store.ListTrucks(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List trucks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"trucks": trucks})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ClosuresHandler handles PUT/GET /v1/closures
func (s *Server) ClosuresHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		if !s.requireOperator(w, r) {
			return
		}
		var req struct {
			Closures []model.ClosurePair `json:"closures"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for _, c := range req.Closures {
			if c.From == "" || c.To == "" || c.From == c.To {
				writeProblem(w, http.StatusBadRequest, "Invalid closures", fmt.Sprintf("bad pair (%q, %q)", c.From, c.To), r.URL.Path)
				return
			}
		}
		if err := s.Store.SetClosures(r.Context(), req.Closures); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Set closures failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"closures": len(req.Closures)})
	case http.MethodGet:
		pairs, err := s.Store.ListClosures(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List closures failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"closures": pairs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanHandler handles POST /v1/plan: it runs one full dispatch cycle over the
// stored state and persists the resulting plan.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireOperator(w, r) {
		return
	}
	if !s.limiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "plan trigger rate exceeded", r.URL.Path)
		return
	}
	var req PlanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}

	in, err := s.gatherInputs(r)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load inputs failed", err.Error(), r.URL.Path)
		return
	}
	in.Algorithm = req.Algorithm

	pipe := s.Pipe
	if req.Reads > 0 {
		cp := *s.Pipe
		cp.Cfg.Anneal.Reads = req.Reads
		pipe = &cp
	}
	out, err := pipe.Run(r.Context(), in)
	if err != nil {
		var ce *plan.ConfigError
		if errors.As(err, &ce) {
			writeProblem(w, http.StatusBadRequest, "Invalid planning configuration", ce.Detail, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Plan cycle failed", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SavePlan(r.Context(), out); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
		return
	}

	data := map[string]any{
		"planId":     out.ID,
		"source":     out.Source,
		"degraded":   out.Degraded,
		"served":     out.FinalKPI.ServedTotal,
		"missed":     out.FinalKPI.MissedTotal,
		"distanceKm": out.FinalKPI.DistanceKm,
		"ts":         out.CreatedAt.Format(time.RFC3339),
	}
	s.Broker.Publish(TopicPlans, Event{Type: "plan.completed", Data: data})
	s.Pub.Emit(r.Context(), "plan.completed", data)
	if out.Degraded {
		s.Broker.Publish(TopicPlans, Event{Type: "plan.degraded", Data: map[string]any{"planId": out.ID, "reason": out.Reason}})
		s.Pub.Emit(r.Context(), "plan.degraded", map[string]any{"planId": out.ID, "reason": out.Reason})
	}

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) gatherInputs(r *http.Request) (pipeline.Inputs, error) {
	ctx := r.Context()
	depot, tanks, err := s.Store.ListTanks(ctx)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	forecasts, err := s.Store.LatestForecasts(ctx)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	histories, err := s.Store.Histories(ctx)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	trucks, err := s.Store.ListTrucks(ctx)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	closures, err := s.Store.ListClosures(ctx)
	if err != nil {
		return pipeline.Inputs{}, err
	}
	return pipeline.Inputs{
		Tanks:     tanks,
		Forecasts: forecasts,
		Histories: histories,
		Depot:     depot,
		Trucks:    trucks,
		Closures:  closures,
	}, nil
}

// PlansIndexHandler handles GET /v1/plans
func (s *Server) PlansIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/plans" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	plans, err := s.Store.ListPlans(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	items := make([]map[string]any, 0, len(plans))
	for _, p := range plans {
		items = append(items, planSummary(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func planSummary(p model.Plan) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"createdAt":  p.CreatedAt,
		"source":     p.Source,
		"degraded":   p.Degraded,
		"served":     p.FinalKPI.ServedTotal,
		"missed":     p.FinalKPI.MissedTotal,
		"distanceKm": p.FinalKPI.DistanceKm,
	}
}

// PlanByIDHandler handles GET /v1/plans/{id}
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Path[len("/v1/plans/"):]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	p, err := s.Store.GetPlan(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Plan not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PrioritiesHandler handles GET /v1/priorities: the fused priority table of
// the most recent plan.
func (s *Server) PrioritiesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, err := s.Store.LatestPlan(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "No plan yet", "trigger POST /v1/plan first", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"planId": p.ID, "priorities": p.Priorities})
}

// EventsStreamHandler streams plan lifecycle events over SSE.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(TopicPlans)
	defer s.Broker.Unsubscribe(TopicPlans, ch)

	fmt.Fprintf(w, "event: stream.open\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, open := <-ch:
			if !open {
				return
			}
			body, err := json.Marshal(evt.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, body)
			flusher.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.requireOperator(w, r) {
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscription(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireOperator(w, r) {
		return
	}
	id := r.URL.Path[len("/v1/subscriptions/"):]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if pinger, ok := s.Store.(interface{ Ping(ctx context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
