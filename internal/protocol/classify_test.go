package protocol

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  Intent
	}{
		{"gateway register", "iot/gateway/GW-4/register", IntentGatewayRegister},
		{"gateway status", "iot/gateway/GW-4/status", IntentGatewayStatus},
		{"node register", "iot/gateway/GW-4/node/ND-2/register", IntentNodeRegister},
		{"node config ack", "iot/gateway/GW-4/node/ND-2/config/ack", IntentNodeConfigAck},
		{"node control ack", "iot/gateway/GW-4/node/ND-2/control/ack", IntentNodeControlAck},

		// Placeholder values must not affect classification.
		{"unconventional gateway segment", "iot/gateway/anything-at-all/register", IntentGatewayRegister},
		{"unconventional node segment", "iot/gateway/x/node/y/control/ack", IntentNodeControlAck},

		// Everything else is unrecognized, never an error.
		{"empty", "", IntentUnrecognized},
		{"wrong root", "home/gateway/GW-4/register", IntentUnrecognized},
		{"wrong second segment", "iot/device/GW-4/register", IntentUnrecognized},
		{"too short", "iot/gateway/GW-4", IntentUnrecognized},
		{"unknown gateway action", "iot/gateway/GW-4/reboot", IntentUnrecognized},
		{"node without action", "iot/gateway/GW-4/node/ND-2", IntentUnrecognized},
		{"unknown node action", "iot/gateway/GW-4/node/ND-2/telemetry", IntentUnrecognized},
		{"config without ack", "iot/gateway/GW-4/node/ND-2/config/set", IntentUnrecognized},
		{"control without ack", "iot/gateway/GW-4/node/ND-2/control/go", IntentUnrecognized},
		{"not node segment", "iot/gateway/GW-4/peer/ND-2/config/ack", IntentUnrecognized},
		{"too long", "iot/gateway/GW-4/node/ND-2/control/ack/extra", IntentUnrecognized},
		{"outbound config set", "iot/gateway/GW-4/config/set", IntentUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.topic); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestClassifyExactlyOneIntent(t *testing.T) {
	// Every recognized topic must match exactly one intent: re-classifying
	// must be deterministic and the five shapes must be mutually exclusive.
	recognized := map[string]Intent{
		"iot/gateway/GW-1/register":              IntentGatewayRegister,
		"iot/gateway/GW-1/status":                IntentGatewayStatus,
		"iot/gateway/GW-1/node/ND-1/register":    IntentNodeRegister,
		"iot/gateway/GW-1/node/ND-1/config/ack":  IntentNodeConfigAck,
		"iot/gateway/GW-1/node/ND-1/control/ack": IntentNodeControlAck,
	}

	seen := make(map[Intent]bool)
	for topic, want := range recognized {
		got := Classify(topic)
		if got != want {
			t.Errorf("Classify(%q) = %v, want %v", topic, got, want)
		}
		if got == IntentUnrecognized {
			t.Errorf("Classify(%q) unrecognized, want a concrete intent", topic)
		}
		if seen[got] {
			t.Errorf("intent %v matched more than one topic shape", got)
		}
		seen[got] = true
	}
}

func TestRefs(t *testing.T) {
	t.Run("gateway topic", func(t *testing.T) {
		gw, node := Refs("iot/gateway/GW-4/register")
		if gw != "GW-4" {
			t.Errorf("gateway = %q, want GW-4", gw)
		}
		if node != "" {
			t.Errorf("node = %q, want empty", node)
		}
	})

	t.Run("node topic", func(t *testing.T) {
		gw, node := Refs("iot/gateway/GW-4/node/ND-2/control/ack")
		if gw != "GW-4" {
			t.Errorf("gateway = %q, want GW-4", gw)
		}
		if node != "ND-2" {
			t.Errorf("node = %q, want ND-2", node)
		}
	})

	t.Run("short topic", func(t *testing.T) {
		gw, node := Refs("iot/gateway")
		if gw != "" || node != "" {
			t.Errorf("got (%q, %q), want empty refs", gw, node)
		}
	})
}

func TestIntentString(t *testing.T) {
	if IntentGatewayRegister.String() != "gateway_register" {
		t.Errorf("unexpected name: %s", IntentGatewayRegister)
	}
	if Intent(99).String() != "unrecognized" {
		t.Errorf("unknown intent should stringify as unrecognized")
	}
}
