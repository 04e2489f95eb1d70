package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/docqueue/internal/api/middleware"
)

// NewRouter wires the task endpoints and the health check.
func NewRouter(tasks *TaskHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace)
	r.Use(middleware.Recoverer)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", tasks.EnqueueTask)
		r.Post("/requeue", tasks.RequeueTasks)
		r.Post("/stop", tasks.StopTasks)
		r.Get("/{uuid}", tasks.GetTask)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
