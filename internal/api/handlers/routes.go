// routes.go — регистрация маршрутов /api/v1 в chi-роутере.
// Параметры пути извлекаются здесь и передаются обработчикам явно.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/pastorale/internal/domain/model"
)

// Routes регистрирует health, metrics и все маршруты API.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/me", h.GetMe)

		r.Route("/visitors", func(r chi.Router) {
			r.Get("/", h.ListVisitors)
			r.Post("/", h.CreateVisitor)
			r.Get("/export", h.ExportVisitors)
			r.Get("/stopped", h.ListStoppedVisitors)
			r.Post("/stopped-scan", h.ScanStoppedVisitors)
			r.Get("/{id}", withID(h.GetVisitor))
			r.Patch("/{id}", withID(h.UpdateVisitor))
			r.Delete("/{id}", withID(h.DeleteVisitor))
		})

		r.Get("/secteurs", h.ListSecteurs)
		r.Post("/secteurs", h.CreateSecteur)

		r.Route("/familles", func(r chi.Router) {
			r.Get("/", h.ListFamilles)
			r.Post("/", h.CreateFamille)
			r.Get("/{id}", withID(h.GetFamille))
			r.Patch("/{id}", withID(h.UpdateFamille))
			r.Get("/{id}/membres", withID(h.ListMembres))
			r.Post("/{id}/membres", withID(h.AddMembre))
		})
		r.Delete("/membres/{id}", withID(h.RemoveMembre))

		r.Route("/bergeries", func(r chi.Router) {
			r.Get("/", h.ListBergeries)
			r.Post("/", h.CreateBergerie)
			r.Get("/{id}/membres", withID(h.ListBergerieMembres))
			r.Post("/{id}/membres", withID(h.AddBergerieMembre))
		})

		r.Get("/presences", h.ListPresences)
		r.Post("/presences", h.RecordPresence)

		r.Get("/fidelisation/visitors", h.VisitorFidelisation)
		r.Get("/fidelisation/fi", h.FIFidelisation)

		r.Route("/kpi", func(r chi.Router) {
			r.Get("/tables", h.ListKpiTables)
			r.Get("/{kind}/statuses", withKind(h.ListKpiStatuses))
			r.Get("/{kind}/{id}", withKindID(h.GetKpiHistory))
			r.Put("/{kind}/{id}/status", withKindID(h.SetKpiManualStatus))
			r.Get("/{kind}/{id}/months/{month}", withKindID(h.GetKpiMonth))
			r.Put("/{kind}/{id}/months/{month}", withKindID(h.SaveKpiMonth))
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Delete("/{id}", withID(h.DeleteEvent))
			r.Get("/{id}/rsvps", withID(h.ListRSVPs))
			r.Post("/{id}/rsvps", withID(h.RecordRSVP))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Post("/{id}/password", withID(h.ResetPassword))
		})
	})
}

func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}

func withKind(fn func(http.ResponseWriter, *http.Request, model.SubjectKind)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, model.SubjectKind(chi.URLParam(r, "kind")))
	}
}

func withKindID(fn func(http.ResponseWriter, *http.Request, model.SubjectKind, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, model.SubjectKind(chi.URLParam(r, "kind")), chi.URLParam(r, "id"))
	}
}

func monthParam(r *http.Request) string {
	return chi.URLParam(r, "month")
}
