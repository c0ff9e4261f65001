package pubsub

import (
	"testing"

	"github.com/angelmondragon/community-market-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		project string
		name    string
		want    string
	}{
		{project: "proj", name: "cm-order-events", want: "projects/proj/topics/cm-order-events"},
		{project: "proj", name: " projects/other/topics/t ", want: "projects/other/topics/t"},
		{project: "", name: "cm-order-events", want: ""},
		{project: "proj", name: "  ", want: ""},
	}
	for _, tt := range tests {
		if got := topicResourceName(tt.project, tt.name); got != tt.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tt.project, tt.name, got, tt.want)
		}
	}
}

func TestTopicNamesDedupes(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "events", PaymentsTopic: "events"})
	if len(names) != 1 || names[0] != "events" {
		t.Fatalf("expected single deduped topic, got %v", names)
	}
	if len(topicNames(config.PubSubConfig{})) != 0 {
		t.Fatalf("expected no topics")
	}
}

func TestClientOptions(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}); len(got) != 1 {
		t.Fatalf("expected json credentials option")
	}
}
