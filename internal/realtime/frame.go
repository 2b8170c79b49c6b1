package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Inbound intents declared by clients.
const (
	IntentJoinUser     = "joinUser"
	IntentJoinProject  = "joinProject"
	IntentLeaveProject = "leaveProject"
)

// Frame is the wire envelope for every pushed message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func EncodeFrame(event string, data any) ([]byte, error) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return frame, nil
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// parseID accepts both 12 and "12"; clients built against string ids send
// the latter.
func parseID(raw json.RawMessage) (uint, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing id")
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("invalid id: %w", err)
		}
	} else {
		text = string(raw)
	}

	id, err := strconv.ParseUint(text, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", text)
	}

	return uint(id), nil
}
