package http

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmw "github.com/learnhub/learnhub-lms/internal/auth/middleware"
	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/rbac"
)

// POST /courses  {"name": "..."}
func CreateCourseHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		c := course.Course{ID: "c-" + uuid.NewString(), Name: req.Name, CreatedBy: sub}
		if err := store.PutCourse(r.Context(), c); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, c)
	}
}

// GET /courses/{courseID}
func GetCourseHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetCourse(r.Context(), chi.URLParam(r, "courseID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		components, err := store.ListComponents(r.Context(), c.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		// students never see answer keys
		if role := rbac.RoleFromContext(r.Context()); role != "admin" && role != "teacher" {
			for i := range components {
				components[i].StripAnswerKeys()
			}
		}
		writeJSON(w, map[string]any{"course": c, "components": components})
	}
}

// DELETE /courses/{courseID} — attempts and progress cascade with it.
func DeleteCourseHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteCourse(r.Context(), chi.URLParam(r, "courseID")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /courses/{courseID}/students  {"user_ids": ["u1","u2"]}
func EnrollStudentsHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		var req struct {
			UserIDs []string `json:"user_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UserIDs) == 0 {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		for _, uid := range req.UserIDs {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			if err := store.Enroll(r.Context(), courseID, uid); err != nil {
				http.Error(w, "db error", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /courses/{courseID}/components — body is a full typed component.
// Definition edits are refused while an in-progress attempt references the
// component.
func PutComponentHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := chi.URLParam(r, "courseID")
		var comp course.Component
		if err := json.NewDecoder(r.Body).Decode(&comp); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if comp.ID == "" {
			comp.ID = "cmp-" + uuid.NewString()
		}
		comp.CourseID = courseID
		if err := store.PutComponent(r.Context(), comp); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": comp.ID})
	}
}

// GET /components/{componentID}
func GetComponentHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "componentID")
		role := rbac.RoleFromContext(r.Context())
		var (
			comp course.Component
			err  error
		)
		if role == "admin" || role == "teacher" {
			comp, err = store.GetComponent(r.Context(), id)
		} else {
			comp, err = store.GetComponentStudent(r.Context(), id)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, comp)
	}
}

// DELETE /components/{componentID}
func DeleteComponentHandler(store *course.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteComponent(r.Context(), chi.URLParam(r, "componentID")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListCoursesHandler lists courses; students only see courses they are
// enrolled in.
func ListCoursesHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())

		var (
			rows *sql.Rows
			err  error
		)
		if role == "admin" || role == "teacher" {
			rows, err = dbh.QueryContext(r.Context(),
				`SELECT id, name FROM courses ORDER BY created_at DESC LIMIT 200`)
		} else {
			rows, err = dbh.QueryContext(r.Context(), `
				SELECT c.id, c.name
				  FROM courses c
				  JOIN course_students s ON s.course_id=c.id
				 WHERE s.student_id=$1 AND s.status='active'
				 ORDER BY c.created_at DESC LIMIT 200`, sub)
		}
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		out := []course.Course{}
		for rows.Next() {
			var c course.Course
			if err := rows.Scan(&c.ID, &c.Name); err == nil {
				out = append(out, c)
			}
		}
		writeJSON(w, out)
	}
}
