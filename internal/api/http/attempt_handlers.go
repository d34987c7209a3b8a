package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/learnhub/learnhub-lms/internal/attempt"
	authmw "github.com/learnhub/learnhub-lms/internal/auth/middleware"
	"github.com/learnhub/learnhub-lms/internal/events"
	"github.com/learnhub/learnhub-lms/internal/grading"
	"github.com/learnhub/learnhub-lms/internal/rbac"
)

// POST /components/{componentID}/attempts
func StartAttemptHandler(ledger *attempt.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		componentID := chi.URLParam(r, "componentID")
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		a, err := ledger.Start(r.Context(), sub, componentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"attempt_id":     a.ID,
			"attempt_number": a.Number,
			"started_at":     a.StartedAt,
		})
	}
}

// POST /components/{componentID}/submit
// Body: {"answers": {"q1": {"selected": ["b"]}, "q2": {"literal": "true"}}, "accept": false}
func SubmitAttemptHandler(ledger *attempt.Ledger, dispatcher *events.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		componentID := chi.URLParam(r, "componentID")
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Answers map[string]grading.Answer `json:"answers"`
			Accept  bool                      `json:"accept"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		score, err := ledger.Submit(r.Context(), sub, componentID, req.Answers, req.Accept)
		if err != nil {
			writeErr(w, err)
			return
		}
		// deliver any completion that the submission produced; certificate
		// issuance is idempotent, so a failure here is retried next request
		if err := dispatcher.DispatchPending(context.WithoutCancel(r.Context())); err != nil {
			log.Printf("event dispatch: %v", err)
		}
		writeJSON(w, score)
	}
}

// GET /components/{componentID}/attempts/active
func ActiveAttemptHandler(ledger *attempt.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		componentID := chi.URLParam(r, "componentID")
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		a, err := ledger.Active(r.Context(), sub, componentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(ledger *attempt.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := ledger.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())
		if role != "admin" && role != "teacher" && a.UserID != sub {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts?component_id=...&course_id=...&user_id=...&status=...&limit=50&offset=0&sort=started_at
// Students only ever see their own attempts; teachers/admins may filter freely.
func ListAttemptsHandler(ledger *attempt.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if role != "admin" && role != "teacher" {
			userID = sub
		}

		list, err := ledger.List(r.Context(), attempt.ListOpts{
			ComponentID: strings.TrimSpace(r.URL.Query().Get("component_id")),
			CourseID:    strings.TrimSpace(r.URL.Query().Get("course_id")),
			UserID:      userID,
			Status:      strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:       parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:      parseIntDefault(r.URL.Query().Get("offset"), 0),
			Sort:        strings.TrimSpace(r.URL.Query().Get("sort")),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, list)
	}
}
