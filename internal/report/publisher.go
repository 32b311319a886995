package report

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Publisher is the part of the MQTT client used for reports.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Topics names the topics readings and alarms are published on.
type Topics interface {
	Reading(sensor, channel string) string
	Alarm(sensor string) string
}

// MQTTSink publishes each reading to its own retained topic.
type MQTTSink struct {
	pub     Publisher
	topics  Topics
	encoder *Encoder
	qos     byte
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher, topics Topics, encoder *Encoder, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, encoder: encoder, qos: qos}
}

// Write implements Sink.
func (s *MQTTSink) Write(_ context.Context, readings []Reading) error {
	var err error
	for _, r := range readings {
		payload, encErr := s.encoder.Encode(r)
		if encErr != nil {
			err = multierr.Append(err, fmt.Errorf("encoding %s/%s: %w", r.Sensor, r.Channel, encErr))
			continue
		}
		err = multierr.Append(err, s.pub.Publish(s.topics.Reading(r.Sensor, r.Channel), payload, s.qos, true))
	}
	return err
}

// PublishAlarm publishes an alarm event. Alarms are not retained.
func (s *MQTTSink) PublishAlarm(a Alarm) error {
	payload, err := s.encoder.Encode(a)
	if err != nil {
		return fmt.Errorf("encoding alarm: %w", err)
	}
	return s.pub.Publish(s.topics.Alarm(a.Sensor), payload, s.qos, false)
}
