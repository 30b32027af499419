package outbox

import "encoding/json"

// Event is the envelope written to the outbox table. The Kafka topic name
// equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	RunID         string
	Payload       []byte
}

const (
	EventItemAutomated    = "triage.item.automated.v1"
	EventItemManualListed = "triage.item.manual_listed.v1"
	EventItemEscalated    = "triage.item.escalated.v1"
	EventReportSent       = "triage.report.sent.v1"
)

// NewEvent marshals payload into an Event.
func NewEvent(aggregateType, aggregateID, eventType, runID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		RunID:         runID,
		Payload:       raw,
	}, nil
}
