package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every sensor node topic.
const DefaultTopicPrefix = "sensornode"

// Topics builds the topics of one node. Every topic lives under
// {prefix}/{node}/.
//
//	topics := mqtt.Topics{Prefix: "sensornode", Node: "greenhouse-2"}
//	topics.Reading("sht3x", "temperature")
//	// Returns: "sensornode/greenhouse-2/reading/sht3x/temperature"
type Topics struct {
	Prefix string
	Node   string
}

func (t Topics) root() string {
	p := t.Prefix
	if p == "" {
		p = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s", p, t.Node)
}

// Reading returns the retained topic of one channel reading.
//
// Example: sensornode/greenhouse-2/reading/sht3x/temperature
func (t Topics) Reading(sensor, channel string) string {
	return fmt.Sprintf("%s/reading/%s/%s", t.root(), sensor, channel)
}

// Alarm returns the topic threshold alarms of a sensor are published on.
//
// Example: sensornode/greenhouse-2/alarm/ds18b20
func (t Topics) Alarm(sensor string) string {
	return fmt.Sprintf("%s/alarm/%s", t.root(), sensor)
}

// Status returns the node status topic carrying the online message and the LWT.
//
// Example: sensornode/greenhouse-2/status
func (t Topics) Status() string {
	return t.root() + "/status"
}

// Command returns the topic a command for one sensor is sent on.
//
// Example: sensornode/greenhouse-2/command/pt100_0/recalibrate
func (t Topics) Command(sensor, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.root(), sensor, action)
}

// AllCommands returns a pattern matching every command to this node.
//
// Pattern: sensornode/greenhouse-2/command/+/+
func (t Topics) AllCommands() string {
	return t.root() + "/command/+/+"
}

// ParseCommand splits a command topic into sensor and action.
func (t Topics) ParseCommand(topic string) (sensor, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/command/")
	if !found {
		return "", "", false
	}
	sensor, action, found = strings.Cut(rest, "/")
	if !found || sensor == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return sensor, action, true
}
