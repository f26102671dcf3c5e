package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/metrics"
)

type RouterConfig struct {
	Quizzes *QuizHandler
	WS      *WSHandler
	Auth    *Authenticator
	Log     *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	metrics.Register()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Route("/api/quizzes", func(r chi.Router) {
			r.Get("/", cfg.Quizzes.ListQuizzes)
			r.Post("/", cfg.Quizzes.CreateQuiz)
			r.Get("/{quizID}", cfg.Quizzes.GetQuiz)
			r.Patch("/{quizID}", cfg.Quizzes.UpdateQuiz)
			r.Delete("/{quizID}", cfg.Quizzes.DeleteQuiz)
		})
		r.Route("/api/results", func(r chi.Router) {
			r.Get("/", cfg.Quizzes.ListResults)
			r.Get("/summary", cfg.Quizzes.Summary)
			r.Get("/export.csv", cfg.Quizzes.ExportCSV)
		})

		r.Get("/ws/quizzes", cfg.WS.ServeQuizzes)
		r.Get("/ws/attempts/{quizID}", cfg.WS.ServeAttempt)
	})
	return r
}

// requestLogger logs one line per request and records request metrics by route pattern.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", elapsed),
			)
		})
	}
}
