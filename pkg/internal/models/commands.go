package models

import jsoniter "github.com/json-iterator/go"

// UnifiedCommand is the packet exchanged with realtime clients in both
// directions.
type UnifiedCommand struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func UnifiedCommandFromError(err error) UnifiedCommand {
	return UnifiedCommand{
		Action:  "error",
		Message: err.Error(),
	}
}

func UnifiedCommandFromEvent(event Event) UnifiedCommand {
	return UnifiedCommand{
		Action:  event.Kind(),
		Payload: event,
	}
}

func (v UnifiedCommand) Marshal() []byte {
	data, _ := jsoniter.Marshal(v)
	return data
}
