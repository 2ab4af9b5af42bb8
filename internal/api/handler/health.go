package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const readinessTimeout = time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db    Pinger
	redis redis.Cmdable
}

func NewHealthHandler(db Pinger, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready pings every configured dependency. Redis is optional: when it is not
// configured the check reports "disabled" and never fails readiness.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	res := readiness{Status: "ready", Checks: map[string]string{}}
	check := func(name string, ping func(context.Context) error) {
		if ping == nil {
			res.Checks[name] = "disabled"
			return
		}
		if err := ping(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "unavailable"
			return
		}
		res.Checks[name] = "ok"
	}

	var dbPing, redisPing func(context.Context) error
	if h.db != nil {
		dbPing = h.db.Ping
	}
	if h.redis != nil {
		redisPing = func(ctx context.Context) error { return h.redis.Ping(ctx).Err() }
	}
	check("postgres", dbPing)
	check("redis", redisPing)

	status := http.StatusOK
	if res.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	RespondJSON(w, status, res)
}
