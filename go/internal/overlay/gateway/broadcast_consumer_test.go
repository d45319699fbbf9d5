package gateway

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nats-io/nats.go"
)

type recordedBroadcast struct {
	Target      string
	ContentType string
	Payload     string
}

type fakeIntake struct {
	broadcasts []recordedBroadcast
	contexts   []string
}

func (f *fakeIntake) HandleBroadcast(target, contentType string, payload []byte) error {
	f.broadcasts = append(f.broadcasts, recordedBroadcast{target, contentType, string(payload)})
	return nil
}

func (f *fakeIntake) HandleContext(payload []byte) error {
	f.contexts = append(f.contexts, string(payload))
	return nil
}

func TestSubjects(t *testing.T) {
	if got := BroadcastSubject("overlay", "chan42"); got != "overlay.chan42.broadcast" {
		t.Errorf("unexpected broadcast subject %q", got)
	}
	if got := ContextSubject("overlay", "chan42"); got != "overlay.chan42.context" {
		t.Errorf("unexpected context subject %q", got)
	}
}

func TestProcessMessageRoutesBySubject(t *testing.T) {
	intake := &fakeIntake{}
	c := &BroadcastConsumer{intake: intake, config: DefaultNATSConsumerConfig()}
	contextSubject := ContextSubject("overlay", "default")

	withHeaders := &nats.Msg{
		Subject: BroadcastSubject("overlay", "default"),
		Header:  nats.Header{},
		Data:    []byte(`{"type":"game_start"}`),
	}
	withHeaders.Header.Set("Content-Type", "application/json")
	withHeaders.Header.Set("Target", "extension")

	withoutHeaders := &nats.Msg{
		Subject: BroadcastSubject("overlay", "default"),
		Data:    []byte(`{"type":"game_end"}`),
	}

	contextMsg := &nats.Msg{
		Subject: contextSubject,
		Data:    []byte(`{"hlsLatencyBroadcaster": 4}`),
	}

	c.processMessage(withHeaders, contextSubject)
	c.processMessage(withoutHeaders, contextSubject)
	c.processMessage(contextMsg, contextSubject)

	want := []recordedBroadcast{
		{Target: "extension", ContentType: "application/json", Payload: `{"type":"game_start"}`},
		{Target: DefaultTarget, ContentType: "", Payload: `{"type":"game_end"}`},
	}
	if diff := cmp.Diff(want, intake.broadcasts); diff != "" {
		t.Errorf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{`{"hlsLatencyBroadcaster": 4}`}, intake.contexts); diff != "" {
		t.Errorf("context updates mismatch (-want +got):\n%s", diff)
	}
}

func TestConsumerNotConnectedWithoutConnection(t *testing.T) {
	c := &BroadcastConsumer{intake: &fakeIntake{}}
	if c.IsConnected() {
		t.Error("expected consumer without a connection to report disconnected")
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
