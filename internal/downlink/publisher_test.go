package downlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lumigrid/lumigrid-core/internal/infrastructure/config"
	"github.com/lumigrid/lumigrid-core/internal/node"
)

// fakeBroker records publishes and can fail selected topics.
type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMsg
	failTopic map[string]bool

	// inFlight tracks concurrent publishes to verify the fan-out cap.
	inFlight    int
	maxInFlight int
	barrier     chan struct{}
}

type publishedMsg struct {
	topic   string
	payload []byte
	qos     byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{failTopic: make(map[string]bool)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	barrier := b.barrier
	b.mu.Unlock()

	if barrier != nil {
		// Hold every publish until the barrier opens so concurrency
		// actually builds up.
		<-barrier
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--

	if b.failTopic[topic] {
		return errors.New("broker rejected message")
	}
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload, qos: qos})
	return nil
}

func (b *fakeBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, m := range b.published {
		out[i] = m.topic
	}
	return out
}

func testBootstrap() config.BootstrapConfig {
	return config.BootstrapConfig{
		MQTTBroker:    "broker.lumigrid.example",
		MQTTPort:      8883,
		LoRaFrequency: 433000000,
		APN:           "internet",
	}
}

func testNode(seq int64) node.Node {
	return node.Node{
		NodeID:        node.FormatNodeID(seq),
		GatewayID:     1,
		MACAddress:    fmt.Sprintf("CC:DD:EE:FF:00:%02d", seq),
		Schedule:      node.Schedule{OnHour: 18, OffHour: 6, PowerLimit: 80},
		ConfigVersion: 2,
	}
}

func TestPublishGatewayBootstrap(t *testing.T) {
	broker := newFakeBroker()
	pub := NewPublisher(broker, 1, testBootstrap())

	err := pub.PublishGatewayBootstrap("GW-4", GatewayBootstrap{
		GatewayID:     4,
		ConfigVersion: "v1",
		Nodes:         []string{"ND-1", "ND-2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(broker.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(broker.published))
	}
	msg := broker.published[0]
	if msg.topic != "iot/gateway/GW-4/config/set" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.qos != 1 {
		t.Errorf("qos = %d, want 1", msg.qos)
	}

	var payload GatewayConfigPayload
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.Type != "config" {
		t.Errorf("type = %q, want config", payload.Type)
	}
	if payload.MQTT.Broker != "broker.lumigrid.example" || payload.MQTT.Port != 8883 {
		t.Errorf("mqtt params not filled from bootstrap config: %+v", payload.MQTT)
	}
	if payload.LoRa.Frequency != 433000000 {
		t.Errorf("lora frequency should default from bootstrap config, got %d", payload.LoRa.Frequency)
	}
	if payload.APN != "internet" {
		t.Errorf("apn = %q", payload.APN)
	}
	if len(payload.Nodes) != 2 {
		t.Errorf("nodes = %v", payload.Nodes)
	}
}

func TestPublishNodeConfig(t *testing.T) {
	broker := newFakeBroker()
	pub := NewPublisher(broker, 1, testBootstrap())

	n := testNode(2)
	if err := pub.PublishNodeConfig("GW-1", &n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := broker.published[0]
	if msg.topic != "iot/gateway/GW-1/node/ND-2/config/set" {
		t.Errorf("topic = %q", msg.topic)
	}

	var payload NodeConfigPayload
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.Schedule.OnHour != 18 || payload.Schedule.OffHour != 6 {
		t.Errorf("schedule = %+v", payload.Schedule)
	}
	if payload.Schedule.OnMin != 0 || payload.Schedule.OffMin != 0 {
		t.Errorf("minute fields should be zero, got %+v", payload.Schedule)
	}
	if payload.ConfigVersion != 2 {
		t.Errorf("configVersion = %d, want 2", payload.ConfigVersion)
	}
}

func TestPublishControl(t *testing.T) {
	broker := newFakeBroker()
	pub := NewPublisher(broker, 1, testBootstrap())

	t.Run("publishes and snapshots payload", func(t *testing.T) {
		raw, err := pub.PublishControl("GW-1", ControlPayload{
			CmdID:     4242,
			GatewayID: 1,
			NodeID:    "ND-1",
			Action:    "ON",
			Mode:      "MANUAL",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var payload ControlPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("snapshot is not valid JSON: %v", err)
		}
		if payload.Type != "control" || payload.CmdID != 4242 {
			t.Errorf("payload = %+v", payload)
		}
		if broker.published[0].topic != "iot/gateway/GW-1/node/ND-1/control" {
			t.Errorf("topic = %q", broker.published[0].topic)
		}
	})

	t.Run("broker failure surfaces as ErrPublishFailed", func(t *testing.T) {
		broker.failTopic["iot/gateway/GW-1/node/ND-9/control"] = true

		_, err := pub.PublishControl("GW-1", ControlPayload{CmdID: 1, NodeID: "ND-9"})
		if !errors.Is(err, ErrPublishFailed) {
			t.Errorf("expected ErrPublishFailed, got %v", err)
		}
	})
}

func TestFanOutConfig(t *testing.T) {
	t.Run("partial failure", func(t *testing.T) {
		broker := newFakeBroker()
		pub := NewPublisher(broker, 1, testBootstrap())

		// 7 nodes, cap 5, 2 made to fail: the other 5 must still succeed
		// and the batch must report exactly 2 failures.
		nodes := make([]node.Node, 7)
		for i := range nodes {
			nodes[i] = testNode(int64(i + 1))
		}
		broker.failTopic["iot/gateway/GW-1/node/ND-3/config/set"] = true
		broker.failTopic["iot/gateway/GW-1/node/ND-6/config/set"] = true

		result := pub.FanOutConfig("GW-1", nodes, 5)

		if result.Total != 7 {
			t.Errorf("total = %d, want 7", result.Total)
		}
		if result.Succeeded != 5 {
			t.Errorf("succeeded = %d, want 5", result.Succeeded)
		}
		if len(result.Failures) != 2 {
			t.Fatalf("failures = %d, want 2", len(result.Failures))
		}
		if !result.Failed() {
			t.Error("Failed() should report true")
		}

		failed := map[string]bool{}
		for _, f := range result.Failures {
			failed[f.NodeID] = true
			if !errors.Is(f.Err, ErrPublishFailed) {
				t.Errorf("failure error should wrap ErrPublishFailed, got %v", f.Err)
			}
		}
		if !failed["ND-3"] || !failed["ND-6"] {
			t.Errorf("wrong nodes reported failed: %v", result.Failures)
		}
	})

	t.Run("respects concurrency cap", func(t *testing.T) {
		broker := newFakeBroker()
		broker.barrier = make(chan struct{})
		pub := NewPublisher(broker, 1, testBootstrap())

		nodes := make([]node.Node, 7)
		for i := range nodes {
			nodes[i] = testNode(int64(i + 1))
		}

		done := make(chan FanOutResult, 1)
		go func() {
			done <- pub.FanOutConfig("GW-1", nodes, 5)
		}()

		// Let goroutines pile up against the barrier, then release.
		close(broker.barrier)
		result := <-done

		if result.Succeeded != 7 {
			t.Errorf("succeeded = %d, want 7", result.Succeeded)
		}
		broker.mu.Lock()
		max := broker.maxInFlight
		broker.mu.Unlock()
		if max > 5 {
			t.Errorf("max in-flight publishes = %d, cap is 5", max)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		broker := newFakeBroker()
		pub := NewPublisher(broker, 1, testBootstrap())

		result := pub.FanOutConfig("GW-1", nil, 5)
		if result.Total != 0 || result.Failed() {
			t.Errorf("empty batch should be a clean no-op: %+v", result)
		}
	})
}
