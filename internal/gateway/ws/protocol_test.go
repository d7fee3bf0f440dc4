package ws

import (
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{
		Type:   FrameTypeRequest,
		ID:     "abc",
		Method: MethodSendMessage,
		Params: json.RawMessage(`{"chat_id":"c1","content":"hi"}`),
	}

	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != f.Type || got.ID != f.ID || got.Method != f.Method {
		t.Errorf("got %+v", got)
	}
}

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame("chat.reply", "chat-1", map[string]string{"content": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FrameTypeEvent || f.Event != "chat.reply" || f.ChatID != "chat-1" {
		t.Errorf("frame = %+v", f)
	}
	var payload map[string]string
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["content"] != "hi" {
		t.Errorf("payload = %v", payload)
	}
}

func TestNewResponseFrame(t *testing.T) {
	ok, err := NewResponseFrame("id1", true, map[string]int{"n": 1}, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok.OK == nil || !*ok.OK || len(ok.Payload) == 0 {
		t.Errorf("frame = %+v", ok)
	}

	fail, err := NewResponseFrame("id2", false, nil, "boom")
	if err != nil {
		t.Fatal(err)
	}
	if fail.OK == nil || *fail.OK || fail.Error != "boom" || fail.Payload != nil {
		t.Errorf("frame = %+v", fail)
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := UnmarshalFrame([]byte("{nope")); err == nil {
		t.Fatal("expected error")
	}
}
