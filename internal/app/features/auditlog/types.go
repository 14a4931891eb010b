// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/donorhub/internal/app/store/audit"
	"github.com/dalemusser/donorhub/internal/app/system/paging"
)

// eventItem is one audit event as returned by the API.
type eventItem struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	TargetID      string            `json:"target_id,omitempty"`
	IP            string            `json:"ip,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

func toItems(events []audit.Event) []eventItem {
	items := make([]eventItem, 0, len(events))
	for _, e := range events {
		items = append(items, eventItem{
			ID:            e.ID.Hex(),
			Timestamp:     e.CreatedAt,
			Category:      e.Category,
			EventType:     e.EventType,
			ActorID:       e.ActorID,
			TargetID:      e.TargetID,
			IP:            e.IP,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		})
	}
	return items
}

// listResponse is the body of GET /audit.
type listResponse struct {
	Items  []eventItem `json:"items"`
	Paging paging.Meta `json:"paging"`
}

var eventTypesByCategory = map[string][]string{
	audit.CategoryAuth: {
		audit.EventSignUp,
		audit.EventLoginSuccess,
		audit.EventLoginFailed,
		audit.EventLoginFailedRateLimit,
		audit.EventProviderLogin,
		audit.EventProviderLoginFailed,
		audit.EventLogout,
		audit.EventForcedSignOut,
		audit.EventPasswordResetRequested,
		audit.EventPasswordResetCompleted,
	},
	audit.CategoryDonor: {
		audit.EventDonorCreated,
		audit.EventDonorUpdated,
		audit.EventDonorDeactivated,
		audit.EventDonorReactivated,
		audit.EventDonorDeleted,
		audit.EventDonorDocumentAdded,
		audit.EventDonorDocumentRemoved,
	},
}

// knownEventType reports whether eventType exists, within category when one
// is given.
func knownEventType(category, eventType string) bool {
	for cat, types := range eventTypesByCategory {
		if category != "" && cat != category {
			continue
		}
		for _, t := range types {
			if t == eventType {
				return true
			}
		}
	}
	return false
}
