package mq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shaiso/Downloader/internal/domain"
)

// transmit имитирует передачу через брокер: сообщение проходит через JSON.
func transmit(t *testing.T, msg *Message) *Message {
	t.Helper()

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &out
}

// --- Command Codec Tests ---

func TestCommandCodec(t *testing.T) {
	req := domain.Request{ID: "a", URL: "https://example.com/a.bin", Destination: "/tmp/a.bin"}

	commands := []domain.Command{
		domain.EnqueueCommand(req),
		domain.CancelCommand("a"),
		domain.CancelAllCommand(),
	}

	for _, cmd := range commands {
		msg, err := EncodeCommand(cmd, "instance-1")
		if err != nil {
			t.Fatalf("EncodeCommand(%s) error: %v", cmd.Kind, err)
		}
		if msg.ID == "" || msg.Origin != "instance-1" {
			t.Errorf("message should carry id and origin, got %+v", msg)
		}

		got, err := DecodeCommand(transmit(t, msg))
		if err != nil {
			t.Fatalf("DecodeCommand(%s) error: %v", cmd.Kind, err)
		}
		if got != cmd {
			t.Errorf("expected %+v, got %+v", cmd, got)
		}
	}
}

func TestDecodeCommand_Rejects(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"enqueue without request", NewMessage(MessageTypeEnqueue, "", CommandPayload{ID: "a"})},
		{"invalid request", NewMessage(MessageTypeEnqueue, "", CommandPayload{Request: &domain.Request{ID: "a"}})},
		{"cancel without id", NewMessage(MessageTypeCancel, "", CommandPayload{})},
		{"result as command", NewMessage(MessageTypeResult, "", ResultPayload{})},
		{"garbage payload", NewMessage(MessageTypeCancel, "", "not an object")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(transmit(t, tt.msg))
			if !errors.Is(err, ErrReject) {
				t.Errorf("expected ErrReject, got %v", err)
			}
		})
	}
}

// --- Result Codec Tests ---

func TestResultCodec(t *testing.T) {
	req := domain.Request{ID: "a", URL: "https://example.com/a", Destination: "/tmp/a"}
	res := domain.Failed(req, errors.New("connection reset"))

	payload, err := DecodeResult(transmit(t, EncodeResult(res, "i1")))
	if err != nil {
		t.Fatalf("DecodeResult() error: %v", err)
	}
	if payload.Kind != domain.ResultFailure || payload.Request != req || payload.Error != "connection reset" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	if _, err := DecodeResult(NewMessage(MessageTypeCancel, "", nil)); !errors.Is(err, ErrReject) {
		t.Errorf("expected ErrReject, got %v", err)
	}
}

func TestControlQueue(t *testing.T) {
	if got := ControlQueue("abc"); got != "downloader.control.abc" {
		t.Errorf("unexpected queue name %q", got)
	}
}
