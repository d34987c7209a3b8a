package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/learnhub/learnhub-lms/internal/auth/middleware"
	"github.com/learnhub/learnhub-lms/internal/cert"
	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/events"
	"github.com/learnhub/learnhub-lms/internal/progress"
	"github.com/learnhub/learnhub-lms/internal/rbac"
)

// POST /components/{componentID}/progress
// Body: {"percent": 100, "time_spent_sec": 30}
// Material components only; assessment progress moves through submissions.
func MaterialProgressHandler(dbh *sql.DB, courses *course.Store, tracker *progress.Tracker, dispatcher *events.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		componentID := chi.URLParam(r, "componentID")
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Percent      int   `json:"percent"`
			TimeSpentSec int64 `json:"time_spent_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		comp, err := courses.GetComponent(r.Context(), componentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if comp.Kind != course.KindMaterial {
			http.Error(w, "not a material component", http.StatusBadRequest)
			return
		}
		p, err := tracker.ApplyTx(r.Context(), dbh, sub, comp, progress.MaterialPing{
			Percent:      req.Percent,
			TimeSpentSec: req.TimeSpentSec,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := dispatcher.DispatchPending(context.WithoutCancel(r.Context())); err != nil {
			log.Printf("event dispatch: %v", err)
		}
		writeJSON(w, p)
	}
}

// GET /components/{componentID}/progress[?user_id=...]
func GetComponentProgressHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		componentID := chi.URLParam(r, "componentID")
		userID := progressSubject(r)
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p, err := progress.LoadComponent(r.Context(), dbh, userID, componentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, p)
	}
}

// GET /courses/{courseID}/progress[?user_id=...]
func GetCourseProgressHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		userID := progressSubject(r)
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		cp, err := progress.LoadCourse(r.Context(), dbh, userID, courseID)
		if err != nil {
			writeErr(w, err)
			return
		}
		components, err := progress.ListByCourse(r.Context(), dbh, userID, courseID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"course":     cp,
			"components": components,
		})
	}
}

// GET /courses/{courseID}/certificate[?user_id=...]
func GetCertificateHandler(issuer *cert.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		userID := progressSubject(r)
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := issuer.Get(r.Context(), userID, courseID)
		if err != nil {
			if err == cert.ErrNotFound {
				http.Error(w, "certificate not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, c)
	}
}

// progressSubject resolves whose progress is being read: students are pinned
// to their own subject, teachers/admins may pass ?user_id=.
func progressSubject(r *http.Request) string {
	sub := authmw.SubjectFromContext(r.Context())
	role := rbac.RoleFromContext(r.Context())
	if role == "admin" || role == "teacher" {
		if v := strings.TrimSpace(r.URL.Query().Get("user_id")); v != "" {
			return v
		}
	}
	return sub
}
