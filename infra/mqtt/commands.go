package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/openride/devicesim/core/bus"
)

var knownCommands = map[string]bool{
	bus.CmdStartRent:   true,
	bus.CmdEndRent:     true,
	bus.CmdKillVehicle: true,
}

// commandFromTopic extracts the command name from a control topic of the
// form control.<command>.<device>.
func commandFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, ".")
	if len(parts) < 3 || parts[0] != "control" {
		return "", false
	}
	name := parts[1]
	if !knownCommands[name] {
		return "", false
	}
	return name, true
}

// decodeOrderID reads the optional order id from a control payload. An empty
// payload is valid; a malformed one yields an empty id and the parse error.
func decodeOrderID(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", err
	}
	return body.OrderID, nil
}
