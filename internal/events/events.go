// Package events defines the detection event schema and the bounded bus that
// hands events to the external transport.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Type names. Field-delta events mirror the table state fields; system events
// report pipeline conditions.
const (
	TypePotChanged     = "pot_changed"
	TypeBoardChanged   = "board_cards_changed"
	TypeHeroChanged    = "hero_cards_changed"
	TypePlayersChanged = "players_changed"
	TypeActionObserved = "action_observed"
	TypeBlindsChanged  = "blinds_changed"
	TypeButtonMoved    = "button_moved"
	TypeTimeoutTicked  = "timeout_ticked"

	TypeHandStart    = "hand_start"
	TypeStreetChange = "street_change"
	TypeHandEnd      = "hand_end"

	TypeCaptureError      = "capture_error"
	TypeLevelChanged      = "degradation_level_changed"
	TypeAccuracyAdvisory  = "accuracy_advisory"
	TypeConfigReloaded    = "config_reloaded"
	TypeConfigReloadError = "config_reload_error"
	TypeEventsDropped     = "events_dropped"
)

// Event is one JSON-serializable detection event.
type Event struct {
	Type          string                 `json:"type"`
	Severity      Severity               `json:"severity"`
	Message       string                 `json:"message"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	EventID       string                 `json:"event_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// New builds an event with a fresh id. The correlation id links every event
// produced from the same capture cycle.
func New(eventType string, severity Severity, message string, data map[string]interface{}, correlationID string) Event {
	return Event{
		Type:          eventType,
		Severity:      severity,
		Message:       message,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
	}
}

// NewConfigReloadFailure reports a rejected configuration reload. The previous
// configuration stays active, so this is a warning, not an error.
func NewConfigReloadFailure(err error) Event {
	return New(TypeConfigReloadError, SeverityWarning,
		"config reload failed, previous configuration remains active",
		map[string]interface{}{"error": err.Error()}, "")
}
