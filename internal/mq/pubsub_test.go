package mq

import (
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/banksoal/apiserver/config"
)

func TestSubscriptionConfigAppliesPurgeRetry(t *testing.T) {
	cfg := config.PubSubConfig{AckDeadline: time.Minute, MinBackoff: 10 * time.Second, MaxBackoff: 5 * time.Minute}

	sc := subscriptionConfig(nil, cfg)
	if sc.AckDeadline != time.Minute {
		t.Fatalf("expected ack deadline of a minute, got %v", sc.AckDeadline)
	}
	if sc.RetryPolicy == nil {
		t.Fatalf("expected retry policy")
	}
	if sc.RetryPolicy.MinimumBackoff != 10*time.Second || sc.RetryPolicy.MaximumBackoff != 5*time.Minute {
		t.Fatalf("unexpected retry policy %+v", sc.RetryPolicy)
	}

	if sc := subscriptionConfig(nil, config.PubSubConfig{}); sc.RetryPolicy != nil || sc.AckDeadline != 0 {
		t.Fatalf("expected server defaults, got %+v", sc)
	}
}

func TestFromPubSubKeepsAttributes(t *testing.T) {
	attempt := 3
	msg := &pubsub.Message{ID: "m-1", Data: []byte("{}"), Attributes: map[string]string{AttrContentType: "application/json"}, DeliveryAttempt: &attempt}

	got := fromPubSub(msg)
	if got.ID != "m-1" || string(got.Data) != "{}" || got.Attributes[AttrContentType] != "application/json" {
		t.Fatalf("unexpected message %+v", got)
	}
	if deliveryAttempt(msg) != 3 {
		t.Fatalf("expected attempt 3")
	}
	if deliveryAttempt(&pubsub.Message{}) != 0 {
		t.Fatalf("expected attempt 0 without dead lettering")
	}
	if name := subscriptionName("banksoal.objects.purge", "-sub"); name != "banksoal.objects.purge-sub" {
		t.Fatalf("unexpected subscription name %q", name)
	}
}
