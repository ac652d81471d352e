package decoder

import (
	"strings"
	"testing"

	"agentindex/internal/ledger"
)

func logTx(logs ...string) *ledger.ParsedTransaction {
	return &ledger.ParsedTransaction{Logs: logs}
}

func TestDecodeAgentRegistered(t *testing.T) {
	tx := logTx(`Program log: agentindex-event: {"type":"AgentRegistered","asset":"AssetA","owner":"OwnerB","collection":"CollC","atomEnabled":true,"uri":"https://example.com/a.json"}`)

	events, err := NewLogDecoder().Decode(Envelope{BlockSlot: 10, TxSignature: "sig1"}, tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt, ok := events[0].(AgentRegistered)
	if !ok {
		t.Fatalf("expected AgentRegistered, got %T", events[0])
	}
	if evt.Asset != "AssetA" || evt.Owner != "OwnerB" || evt.Collection != "CollC" || !evt.AtomEnabled {
		t.Fatalf("fields not decoded correctly: %+v", evt)
	}
	if evt.BlockSlot != 10 || evt.TxSignature != "sig1" {
		t.Fatalf("envelope not attached: %+v", evt.Envelope)
	}
}

func TestDecodeMultipleEventsInOneTransaction(t *testing.T) {
	tx := logTx(
		`Program log: agentindex-event: {"type":"UriUpdated","asset":"AssetA","uri":"https://example.com/new.json"}`,
		`Program log: agentindex-event: {"type":"WalletUpdated","asset":"AssetA","wallet":"WalletX"}`,
	)
	events, err := NewLogDecoder().Decode(Envelope{}, tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type() != EventUriUpdated || events[1].Type() != EventWalletUpdated {
		t.Fatalf("unexpected event types: %v, %v", events[0].Type(), events[1].Type())
	}
}

func TestDecodeIgnoresUnrelatedLogLines(t *testing.T) {
	tx := logTx("Program log: Instruction: RegisterAgent", "Program consumption: 1200 units")
	events, err := NewLogDecoder().Decode(Envelope{}, tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestDecodeRejectsUnknownEventType(t *testing.T) {
	tx := logTx(`Program log: agentindex-event: {"type":"SomeFutureEvent","asset":"AssetA"}`)
	_, err := NewLogDecoder().Decode(Envelope{}, tx)
	if err == nil {
		t.Fatalf("expected an error for unknown event type")
	}
	if !strings.Contains(err.Error(), "unknown event type") {
		t.Fatalf("expected unknown-event error, got %v", err)
	}
}

func TestDecodeNewFeedbackParsesValueAndHashes(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	digest := strings.Repeat("cd", 32)
	tx := logTx(`Program log: agentindex-event: {"type":"NewFeedback","asset":"AssetA","client":"ClientY","feedbackIndex":3,"value_raw":"8500","valueDecimals":2,"score":90,"tag1":"t1","tag2":"t2","endpoint":"e1","feedbackUri":"https://example.com/f.json","feedbackHash":"` + hash + `","runningDigest":"` + digest + `"}`)

	events, err := NewLogDecoder().Decode(Envelope{}, tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evt, ok := events[0].(NewFeedback)
	if !ok {
		t.Fatalf("expected NewFeedback, got %T", events[0])
	}
	if evt.Value.String() != "8500" {
		t.Fatalf("expected value 8500, got %s", evt.Value.String())
	}
	if evt.FeedbackIndex != 3 || evt.Score != 90 {
		t.Fatalf("fields not decoded correctly: %+v", evt)
	}
	for i := 0; i < 32; i++ {
		if evt.FeedbackHash[i] != 0xab || evt.RunningDigest[i] != 0xcd {
			t.Fatalf("hashes not decoded correctly: feedbackHash=%x runningDigest=%x", evt.FeedbackHash, evt.RunningDigest)
		}
	}
}

func TestDecodeMalformedPayloadIsAnError(t *testing.T) {
	tx := logTx(`Program log: agentindex-event: not-json`)
	_, err := NewLogDecoder().Decode(Envelope{}, tx)
	if err == nil {
		t.Fatalf("expected an error for malformed payload")
	}
}

func TestDecodeNilTransactionReturnsNoEvents(t *testing.T) {
	events, err := NewLogDecoder().Decode(Envelope{}, nil)
	if err != nil || events != nil {
		t.Fatalf("expected (nil, nil) for nil transaction, got (%v, %v)", events, err)
	}
}
