//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/report"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func connect(t *testing.T, clientID string, topics Topics) *Client {
	t.Helper()
	c, err := Connect(integrationConfig(clientID), topics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	topics := Topics{Prefix: "sensornode-int", Node: "track"}
	client := connect(t, "sensornode-int-track", topics)

	handler := func(string, []byte) error { return nil }
	if err := client.Subscribe(topics.AllCommands(), 1, handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topics.AllCommands()) {
		t.Error("HasSubscription() = false after subscribe")
	}

	if err := client.Unsubscribe(topics.AllCommands()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics.AllCommands()) {
		t.Error("HasSubscription() = true after unsubscribe")
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	topics := Topics{Prefix: "sensornode-int", Node: "cmd"}
	node := connect(t, "sensornode-int-node", topics)
	operator := connect(t, "sensornode-int-operator", Topics{Prefix: "sensornode-int", Node: "operator"})

	type command struct{ sensor, action, payload string }
	received := make(chan command, 1)
	var once sync.Once

	err := node.Subscribe(topics.AllCommands(), 1, func(topic string, payload []byte) error {
		sensor, action, ok := topics.ParseCommand(topic)
		if ok {
			once.Do(func() { received <- command{sensor, action, string(payload)} })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := operator.Publish(topics.Command("pt100_0", "recalibrate"), []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case cmd := <-received:
		if cmd.sensor != "pt100_0" || cmd.action != "recalibrate" || cmd.payload != "{}" {
			t.Errorf("received %+v", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for command")
	}
}

func TestIntegration_ReadingSink(t *testing.T) {
	topics := Topics{Prefix: "sensornode-int", Node: "sink"}
	node := connect(t, "sensornode-int-sink", topics)
	observer := connect(t, "sensornode-int-observer", Topics{Prefix: "sensornode-int", Node: "observer"})

	got := make(chan report.Reading, 1)
	var once sync.Once
	err := observer.Subscribe(topics.Reading("sht3x", "temperature"), 1, func(_ string, payload []byte) error {
		var r report.Reading
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		once.Do(func() { got <- r })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	enc, err := report.NewEncoder("json")
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	sink := report.NewMQTTSink(node, topics, enc, 1)
	reading := report.Reading{Node: "sink", Sensor: "sht3x", Channel: "temperature", Value: 21.5, Status: "normal"}
	if err := sink.Write(context.Background(), []report.Reading{reading}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case r := <-got:
		if r.Value != 21.5 || r.Sensor != "sht3x" {
			t.Errorf("received %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for reading")
	}
}
