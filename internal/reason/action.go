package reason

import "encoding/json"

// AlertLevel grades the urgency of a reasoning result.
type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertLow
	AlertMedium
	AlertHigh
	AlertCritical
)

func (l AlertLevel) String() string {
	switch l {
	case AlertNone:
		return "none"
	case AlertLow:
		return "low"
	case AlertMedium:
		return "medium"
	case AlertHigh:
		return "high"
	case AlertCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseAlertLevel maps the wire string back onto the closed level set.
// Unknown strings degrade to AlertNone rather than failing the frame.
func ParseAlertLevel(s string) AlertLevel {
	switch s {
	case "low":
		return AlertLow
	case "medium":
		return AlertMedium
	case "high":
		return AlertHigh
	case "critical":
		return AlertCritical
	default:
		return AlertNone
	}
}

// MarshalJSON publishes the level as its string name so MQTT consumers
// do not depend on the enum ordering.
func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *AlertLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*l = ParseAlertLevel(name)
	return nil
}

// Status of one dispatched inference call.
const (
	StatusOK       = "ok"
	StatusNotReady = "not_ready"
	StatusError    = "error"
)

// Action is the structured output of one reasoning call.
type Action struct {
	RequestID   string     `json:"request_id"`
	Status      string     `json:"status"`
	AlertLevel  AlertLevel `json:"alert_level"`
	Message     string     `json:"message"`
	Speech      string     `json:"speech,omitempty"` // co-driver call-out, if any
	Confidence  float64    `json:"confidence"`       // in [0,1]
	TimestampMs int64      `json:"ts_ms"`
}
