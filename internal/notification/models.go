// Package notification fans out workflow events to the interested parties.
// Dispatch is fire-and-forget: a delivery failure is logged and counted but
// never fails or reverses the state transition that produced it.
package notification

import (
	"time"

	"coitrack/pkg/domain"
)

// EventType names a workflow transition worth notifying about.
type EventType string

const (
	EventBrokerInfoSubmitted    EventType = "broker_info_submitted"
	EventPoliciesUploaded       EventType = "policies_uploaded"
	EventPoliciesSigned         EventType = "policies_signed"
	EventCOIApproved            EventType = "coi_approved"
	EventCOIDeficient           EventType = "coi_deficient"
	EventCOIRejected            EventType = "coi_rejected"
	EventCOIRenewed             EventType = "coi_renewed"
	EventHoldHarmlessGenerated  EventType = "hold_harmless_generated"
	EventHoldHarmlessSigned     EventType = "hold_harmless_signed"
	EventHoldHarmlessCompleted  EventType = "hold_harmless_completed"
)

// Notification is the transport-agnostic payload handed to sinks.
type Notification struct {
	Event          EventType             `json:"event"`
	COIID          domain.COIID          `json:"coi_id"`
	HoldHarmlessID domain.HoldHarmlessID `json:"hold_harmless_id,omitempty"`
	Status         string                `json:"status"`
	ActorParty     domain.Party          `json:"actor_party"`
	Recipients     []domain.Party        `json:"recipients"`
	OccurredAt     time.Time             `json:"occurred_at"`
	RequestID      string                `json:"request_id,omitempty"`

	// DedupeKey identifies one committed transition so redelivered dispatch
	// attempts collapse. Distinct loop iterations (e.g. a second upload after
	// a deficiency) carry distinct keys.
	DedupeKey string `json:"-"`
}

// RecipientsFor computes the fixed recipient set for an event: every party
// minus whichever role performed the action. Hold-harmless completion is the
// documented exception: it notifies GC and subcontractor only, never the
// broker.
func RecipientsFor(event EventType, actor domain.Party) []domain.Party {
	if event == EventHoldHarmlessCompleted {
		return []domain.Party{domain.PartyGC, domain.PartySubcontractor}
	}
	recipients := make([]domain.Party, 0, 3)
	for _, p := range domain.AllParties() {
		if p == actor {
			continue
		}
		recipients = append(recipients, p)
	}
	return recipients
}
