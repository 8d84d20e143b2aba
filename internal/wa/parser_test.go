package wa

import (
	"testing"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

const testInbox = "+19145550001"

func liveMessage(chat types.JID, id string, fromMe bool, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        id,
			Timestamp: time.UnixMilli(1700000000000),
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   chat,
				IsFromMe: fromMe,
			},
		},
		Message: msg,
	}
}

func TestExtractTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")}}, "extended"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("my rash")}}, "my rash"},
		{"image (no text)", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"empty conversation", &waE2E.Message{Conversation: proto.String("")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTextBody(tt.msg)
			if got != tt.want {
				t.Errorf("extractTextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectMessageType(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, "unknown"},
		{"text conversation", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"location", &waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, "location"},
		{"empty message", &waE2E.Message{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectMessageType(tt.msg)
			if got != tt.want {
				t.Errorf("detectMessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLiveMessageDirection(t *testing.T) {
	chat := types.JID{User: "15550001111", Server: types.DefaultUserServer}
	text := &waE2E.Message{Conversation: proto.String("can I move my appointment?")}

	in, ok := ParseLiveMessage(liveMessage(chat, "m1", false, text), testInbox)
	if !ok {
		t.Fatal("inbound message skipped")
	}
	if in.Direction != store.Inbound || in.PatientPhone != "+15550001111" || in.InboxAddress != testInbox {
		t.Errorf("inbound = %+v", in)
	}
	if in.Channel != Channel || in.ExternalID != "m1" || in.Timestamp != 1700000000000 {
		t.Errorf("inbound metadata = %+v", in)
	}

	out, ok := ParseLiveMessage(liveMessage(chat, "m2", true, text), testInbox)
	if !ok {
		t.Fatal("outbound message skipped")
	}
	if out.Direction != store.Outbound || out.PatientPhone != "+15550001111" {
		t.Errorf("outbound = %+v", out)
	}
}

func TestParseLiveMessageSkips(t *testing.T) {
	text := &waE2E.Message{Conversation: proto.String("hi")}
	tests := []struct {
		name string
		evt  *events.Message
	}{
		{"group", liveMessage(types.JID{User: "120363123456", Server: types.GroupServer}, "g1", false, text)},
		{"broadcast", liveMessage(types.StatusBroadcastJID, "s1", false, text)},
		{"unresolved lid", liveMessage(types.JID{User: "3917077286968", Server: types.HiddenUserServer}, "l1", false, text)},
		{"no content", liveMessage(types.JID{User: "15550001111", Server: types.DefaultUserServer}, "e1", false, &waE2E.Message{})},
		{"no id", liveMessage(types.JID{User: "15550001111", Server: types.DefaultUserServer}, "", false, text)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := ParseLiveMessage(tt.evt, testInbox); ok {
				t.Errorf("expected skip, got %+v", ev)
			}
		})
	}
}

func TestParseLiveMessageMediaPlaceholder(t *testing.T) {
	chat := types.JID{User: "15550001111", Server: types.DefaultUserServer, Device: 2}
	ev, ok := ParseLiveMessage(liveMessage(chat, "a1", false, &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}), testInbox)
	if !ok {
		t.Fatal("audio message skipped")
	}
	if ev.Body != "[audio]" {
		t.Errorf("Body = %q, want [audio]", ev.Body)
	}
	if ev.PatientPhone != "+15550001111" {
		t.Errorf("PatientPhone = %q, device suffix not stripped", ev.PatientPhone)
	}
}

func historyMsg(id string, fromMe bool, ts uint64, body string) *waHistorySync.HistorySyncMsg {
	return &waHistorySync.HistorySyncMsg{
		Message: &waWeb.WebMessageInfo{
			Key: &waCommon.MessageKey{
				ID:     proto.String(id),
				FromMe: proto.Bool(fromMe),
			},
			MessageTimestamp: &ts,
			Message:          &waE2E.Message{Conversation: proto.String(body)},
		},
	}
}

func TestParseHistory(t *testing.T) {
	data := &waHistorySync.HistorySync{
		Conversations: []*waHistorySync.Conversation{
			{
				ID: proto.String("15550001111@s.whatsapp.net"),
				Messages: []*waHistorySync.HistorySyncMsg{
					historyMsg("h1", false, 1700000000, "hello"),
					historyMsg("h2", true, 1700000100, "see you tomorrow"),
					{Message: nil},
				},
			},
			{
				ID:       proto.String("120363123456@g.us"),
				Messages: []*waHistorySync.HistorySyncMsg{historyMsg("g1", false, 1700000000, "group")},
			},
		},
	}

	got := ParseHistory(data, testInbox, nil)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2 (group and empty skipped)", len(got))
	}
	if got[0].Direction != store.Inbound || got[0].Timestamp != 1700000000000 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Direction != store.Outbound || got[1].InboxAddress != testInbox {
		t.Errorf("second = %+v", got[1])
	}
	if ParseHistory(nil, testInbox, nil) != nil {
		t.Error("nil history should produce nothing")
	}
}

func TestParseHistoryResolvesLID(t *testing.T) {
	data := &waHistorySync.HistorySync{
		Conversations: []*waHistorySync.Conversation{{
			ID:       proto.String("3917077286968@lid"),
			Messages: []*waHistorySync.HistorySyncMsg{historyMsg("h1", false, 1700000000, "hi")},
		}},
	}
	if got := ParseHistory(data, testInbox, nil); len(got) != 0 {
		t.Errorf("unresolved LID conversation should be skipped, got %+v", got)
	}

	resolve := func(jid types.JID) types.JID {
		if jid.Server == types.HiddenUserServer {
			return types.JID{User: "15550001111", Server: types.DefaultUserServer}
		}
		return jid
	}
	got := ParseHistory(data, testInbox, resolve)
	if len(got) != 1 || got[0].PatientPhone != "+15550001111" {
		t.Errorf("resolved history = %+v", got)
	}
}
