package protocol

import (
	"errors"
	"testing"
)

func TestIsOfflineLiteral(t *testing.T) {
	if !IsOfflineLiteral([]byte("OFFLINE")) {
		t.Error("bare OFFLINE should be recognized")
	}
	if !IsOfflineLiteral([]byte("  OFFLINE\n")) {
		t.Error("whitespace-padded OFFLINE should be recognized")
	}
	if IsOfflineLiteral([]byte(`{"type":"register"}`)) {
		t.Error("JSON payload should not be the offline literal")
	}
	if IsOfflineLiteral([]byte("offline")) {
		t.Error("literal is case-sensitive")
	}
}

func TestDecodeGatewayRegister(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := DecodeGatewayRegister([]byte(`{"type":"register","deviceId":"GW-4","firmwareVersion":"1.2.0"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.DeviceID != "GW-4" || msg.FirmwareVersion != "1.2.0" {
			t.Errorf("unexpected message: %+v", msg)
		}
	})

	t.Run("not JSON", func(t *testing.T) {
		_, err := DecodeGatewayRegister([]byte("OFFLINE"))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("missing deviceId", func(t *testing.T) {
		_, err := DecodeGatewayRegister([]byte(`{"type":"register"}`))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})
}

func TestDecodeGatewayStatus(t *testing.T) {
	msg, err := DecodeGatewayStatus([]byte(`{"type":"status","deviceId":"GW-4","gatewayId":4,"uptime_s":3600,"nodeCount":12}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GatewayID != 4 || msg.UptimeS != 3600 || msg.NodeCount != 12 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestDecodeNodeRegister(t *testing.T) {
	msg, err := DecodeNodeRegister([]byte(`{"type":"register","deviceId":"node-CC:DD","gatewayId":1,"nodeId":"ND-1","rssi":-87.5,"snr":9.25,"timestamp":1755259200}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.RSSI != -87.5 || msg.SNR != 9.25 || msg.NodeID != "ND-1" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestDecodeNodeConfigAck(t *testing.T) {
	msg, err := DecodeNodeConfigAck([]byte(`{"nodeId":"ND-1","cfgVer":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.NodeID != "ND-1" || msg.CfgVer != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestDecodeNodeControlAck(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := DecodeNodeControlAck([]byte(`{"type":"control_ack","gatewayId":1,"deviceId":"node-CC:DD","nodeId":"ND-1","cmdId":4242,"success":true,"ts":1755259200}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.CmdID != 4242 || !msg.Success {
			t.Errorf("unexpected message: %+v", msg)
		}
	})

	t.Run("cmdId above 16-bit range", func(t *testing.T) {
		_, err := DecodeNodeControlAck([]byte(`{"nodeId":"ND-1","cmdId":70000}`))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("negative cmdId", func(t *testing.T) {
		_, err := DecodeNodeControlAck([]byte(`{"nodeId":"ND-1","cmdId":-1}`))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})
}

func TestTopicBuilders(t *testing.T) {
	if got := GatewayConfigSetTopic("GW-4"); got != "iot/gateway/GW-4/config/set" {
		t.Errorf("GatewayConfigSetTopic = %q", got)
	}
	if got := NodeConfigSetTopic("GW-4", "ND-2"); got != "iot/gateway/GW-4/node/ND-2/config/set" {
		t.Errorf("NodeConfigSetTopic = %q", got)
	}
	if got := NodeControlTopic("GW-4", "ND-2"); got != "iot/gateway/GW-4/node/ND-2/control" {
		t.Errorf("NodeControlTopic = %q", got)
	}

	// Outbound topics must never collide with inbound classification.
	for _, topic := range []string{
		GatewayConfigSetTopic("GW-4"),
		NodeConfigSetTopic("GW-4", "ND-2"),
		NodeControlTopic("GW-4", "ND-2"),
	} {
		if Classify(topic) != IntentUnrecognized {
			t.Errorf("outbound topic %q classified as inbound intent", topic)
		}
	}
}

func TestDeviceIDPrefixes(t *testing.T) {
	if !IsGatewayDeviceID("GW-4") || !IsGatewayDeviceID("device-AA:BB") {
		t.Error("gateway prefixes not recognized")
	}
	if IsGatewayDeviceID("node-CC:DD") {
		t.Error("node id recognized as gateway")
	}
	if !IsNodeDeviceID("node-CC:DD") {
		t.Error("node prefix not recognized")
	}
}
