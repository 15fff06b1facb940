package app

import "encoding/json"

type EventType string

const (
	EventStart    EventType = "start"
	EventContext  EventType = "context"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one step of a streamed answer. Only the fields that belong to its
// Type are serialized.
type Event struct {
	Type     EventType
	Count    int
	Text     string
	FullText string
	Message  string
}

func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventContext:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Count int       `json:"count"`
		}{e.Type, e.Count})
	case EventChunk:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Text string    `json:"text"`
		}{e.Type, e.Text})
	case EventComplete:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			FullText string    `json:"fullText"`
		}{e.Type, e.FullText})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     EventType `json:"type"`
		Count    int       `json:"count"`
		Text     string    `json:"text"`
		FullText string    `json:"fullText"`
		Message  string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw)
	return nil
}
