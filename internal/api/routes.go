package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.SubmitTask)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("GET /api/v1/tasks/{id}/units", chain(http.HandlerFunc(h.ListTaskUnits)))

	// Weavers
	mux.Handle("GET /api/v1/weavers", chain(http.HandlerFunc(h.ListWeavers)))
	mux.Handle("POST /api/v1/weavers", chain(http.HandlerFunc(h.RegisterWeaver)))
	mux.Handle("GET /api/v1/weavers/{id}", chain(http.HandlerFunc(h.GetWeaver)))
	mux.Handle("POST /api/v1/weavers/{id}/heartbeat", chain(http.HandlerFunc(h.Heartbeat)))
	mux.Handle("POST /api/v1/weavers/{id}/poll", chain(http.HandlerFunc(h.Poll)))

	// Work units
	mux.Handle("POST /api/v1/units/{id}/result", chain(http.HandlerFunc(h.ReportResult)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
