// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"time"

	uierrors "github.com/dalemusser/donorhub/internal/app/features/errors"
	"github.com/dalemusser/donorhub/internal/app/store/audit"
	"github.com/dalemusser/donorhub/internal/app/system/formutil"
	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/app/system/paging"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DonorHistoryLimit caps GET /audit/donors/{id}.
const DonorHistoryLimit = 100

const dateLayout = "2006-01-02"

// ServeList handles GET /audit with optional filters: category, event_type,
// actor, target, start_date and end_date (YYYY-MM-DD, end date inclusive),
// plus page and per_page.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, fields := parseFilter(r)
	if len(fields) > 0 {
		uierrors.RenderValidation(w, fields)
		return
	}
	page := paging.Parse(r)
	filter.Limit = page.Limit()
	filter.Offset = page.Offset()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "query audit events", err, "A database error occurred.")
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "count audit events", err, "A database error occurred.")
		return
	}

	formutil.WriteJSON(w, http.StatusOK, listResponse{
		Items:  toItems(events),
		Paging: page.MetaFor(total),
	})
}

// ServeDonorHistory handles GET /audit/donors/{id}: the newest events whose
// target is the donor.
func (h *Handler) ServeDonorHistory(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, "Donor not found.")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "donor history")
	defer cancel()

	events, err := h.Events.Query(ctx, audit.QueryFilter{
		Category: audit.CategoryDonor,
		TargetID: id.Hex(),
		Limit:    DonorHistoryLimit,
	})
	if err != nil {
		h.ErrLog.LogServerError(w, r, "query donor history", err, "A database error occurred.")
		return
	}
	formutil.WriteJSON(w, http.StatusOK, map[string]any{"items": toItems(events)})
}

func parseFilter(r *http.Request) (audit.QueryFilter, map[string]string) {
	f := audit.QueryFilter{
		Category:  normalize.Role(query.Get(r, "category")),
		EventType: normalize.Role(query.Get(r, "event_type")),
		ActorID:   normalize.QueryParam(query.Get(r, "actor")),
		TargetID:  normalize.QueryParam(query.Get(r, "target")),
	}
	fields := map[string]string{}

	if f.Category != "" {
		if _, ok := eventTypesByCategory[f.Category]; !ok {
			fields["category"] = "Unknown category."
		}
	}
	if f.EventType != "" && fields["category"] == "" && !knownEventType(f.Category, f.EventType) {
		fields["event_type"] = "Unknown event type."
	}

	if s := query.Get(r, "start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			fields["start_date"] = "Use the YYYY-MM-DD format."
		} else {
			f.StartTime = &t
		}
	}
	if s := query.Get(r, "end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			fields["end_date"] = "Use the YYYY-MM-DD format."
		} else {
			end := t.Add(24*time.Hour - time.Nanosecond)
			f.EndTime = &end
		}
	}
	if f.StartTime != nil && f.EndTime != nil && f.EndTime.Before(*f.StartTime) {
		fields["end_date"] = "End date is before start date."
	}
	return f, fields
}
