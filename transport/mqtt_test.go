package transport

import (
	"context"
	"testing"
)

func TestMQTT_TopicPaths(t *testing.T) {
	cfg := MQTTConfig{Prefix: "lmstudio", SessionID: "abc123"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"inboundTopic", inboundTopic(cfg), "lmstudio/abc123/s2c"},
		{"outboundTopic", outboundTopic(cfg), "lmstudio/abc123/c2s"},
		{"clientID", clientID(cfg), "lmsclient-abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDialMQTT_RejectsEmptySessionID(t *testing.T) {
	_, err := DialMQTT(context.Background(), MQTTConfig{Broker: "mqtt://127.0.0.1:1883", Prefix: "lmstudio"})
	if err == nil {
		t.Fatal("expected an error for an empty session id")
	}
}
