package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ReadyHandler runs every check in parallel and answers 503 if any fails.
// The body maps each check name to "ok" or its error.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errs := make([]error, len(checks))
		var wg sync.WaitGroup
		for i, check := range checks {
			if check.Check == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
				defer cancel()
				errs[i] = check.Check(ctx)
			}()
		}
		wg.Wait()

		report := readyReport{Status: "ok", Checks: make(map[string]string, len(checks))}
		for i, check := range checks {
			name := check.Name
			if name == "" {
				name = fmt.Sprintf("check_%d", i)
			}
			if errs[i] != nil {
				report.Status = "unavailable"
				report.Checks[name] = errs[i].Error()
				continue
			}
			report.Checks[name] = "ok"
		}

		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}
