package mqtt

import (
	"fmt"
	"strings"
)

// QoS levels.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
	QoSExactlyOnce byte = 2
)

// TopicFilter returns the multi-level wildcard filter covering every topic
// below prefix.
//
// Example: TopicFilter("sensors") returns "sensors/#"
func TopicFilter(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/#"
}

// ValidateFilter checks a topic filter against the MQTT wildcard rules:
// "#" only as the last level, "+" only as a whole level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter cannot be empty", ErrInvalidTopic)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q misuses '#'", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q misuses '+'", ErrInvalidTopic, filter)
		}
	}
	return nil
}
