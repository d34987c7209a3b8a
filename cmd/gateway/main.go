package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/learnhub/learnhub-lms/internal/api/http"
	"github.com/learnhub/learnhub-lms/internal/attempt"
	authmw "github.com/learnhub/learnhub-lms/internal/auth/middleware"
	"github.com/learnhub/learnhub-lms/internal/cert"
	"github.com/learnhub/learnhub-lms/internal/config"
	"github.com/learnhub/learnhub-lms/internal/course"
	"github.com/learnhub/learnhub-lms/internal/db"
	"github.com/learnhub/learnhub-lms/internal/events"
	"github.com/learnhub/learnhub-lms/internal/grading"
	"github.com/learnhub/learnhub-lms/internal/progress"
	"github.com/learnhub/learnhub-lms/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	// --- Engine ---
	courses := course.NewStore(dbh)
	eventLog := events.NewLog()
	aggregator := progress.NewAggregator(eventLog)
	tracker := progress.NewTracker(eventLog, aggregator)
	ledger := attempt.NewLedger(dbh, courses, grading.NewScorer(), tracker)
	issuer := cert.NewIssuer(dbh)
	dispatcher := events.NewDispatcher(dbh, issuer, time.Now)

	// Drain deliveries that failed in-request; without this a failed
	// CourseCompleted after a user's last request would stay parked until
	// some unrelated submission came along.
	go func() {
		tick := time.NewTicker(30 * time.Second)
		defer tick.Stop()
		for range tick.C {
			if err := dispatcher.DispatchPending(context.Background()); err != nil {
				log.Printf("event dispatch: %v", err)
			}
		}
	}()

	// --- Auth ---
	authSvc := authmw.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", authmw.LoginHandler(authSvc, dbh))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))
		pr.Use(authmw.AttachRoleFromDB(dbh, true))

		// Course authoring (teacher/admin)
		pr.With(rbac.Require("course:create")).
			Post("/courses", api.CreateCourseHandler(courses))
		pr.With(rbac.Require("course:view")).
			Get("/courses", api.ListCoursesHandler(dbh))
		pr.With(rbac.Require("course:view")).
			Get("/courses/{courseID}", api.GetCourseHandler(courses))
		pr.With(rbac.Require("course:delete_own")).
			Delete("/courses/{courseID}", api.DeleteCourseHandler(courses))
		pr.With(rbac.Require("course:create")).
			Post("/courses/{courseID}/students", api.EnrollStudentsHandler(courses))
		pr.With(rbac.Require("component:create")).
			Post("/courses/{courseID}/components", api.PutComponentHandler(courses))
		pr.With(rbac.Require("component:view")).
			Get("/components/{componentID}", api.GetComponentHandler(courses))
		pr.With(rbac.Require("component:delete")).
			Delete("/components/{componentID}", api.DeleteComponentHandler(courses))

		// Student flow
		pr.With(rbac.Require("attempt:create")).
			Post("/components/{componentID}/attempts", api.StartAttemptHandler(ledger))
		pr.With(rbac.Require("attempt:submit")).
			Post("/components/{componentID}/submit", api.SubmitAttemptHandler(ledger, dispatcher))
		pr.With(rbac.Require("attempt:view-own")).
			Get("/components/{componentID}/attempts/active", api.ActiveAttemptHandler(ledger))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(ledger))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(ledger))
		pr.With(rbac.Require("progress:ping")).
			Post("/components/{componentID}/progress", api.MaterialProgressHandler(dbh, courses, tracker, dispatcher))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/components/{componentID}/progress", api.GetComponentProgressHandler(dbh))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/courses/{courseID}/progress", api.GetCourseProgressHandler(dbh))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/courses/{courseID}/certificate", api.GetCertificateHandler(issuer))

		// Users (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
