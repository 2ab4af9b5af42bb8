package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/api/problem"
	"github.com/go-chi/httprate"
)

// RateLimiter caps requests per second, keyed by operator when one is known
// and by client IP otherwise.
func RateLimiter(rps int) func(http.Handler) http.Handler {
	if rps < 1 {
		rps = 1
	}
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(rateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem.Write(
				w,
				r,
				http.StatusTooManyRequests,
				problem.Type("rate-limit-exceeded"),
				http.StatusText(http.StatusTooManyRequests),
				fmt.Sprintf("Rate limit of %d req/s exceeded", rps),
			)
		}),
	)
}

func rateKey(r *http.Request) (string, error) {
	if operatorID := OperatorIDFromContext(r.Context()); operatorID != nil {
		return "operator:" + operatorID.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
