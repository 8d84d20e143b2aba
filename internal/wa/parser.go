package wa

import (
	"github.com/sumithjoshi99/medconnect/internal/ingest"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Channel is the channel name stored on WhatsApp messages.
const Channel = "whatsapp"

// ParseLiveMessage normalizes a live message in a one-to-one chat into an
// ingestion event attributed to inbox. Group, broadcast and unresolved LID
// chats, and messages with no displayable content, are skipped.
func ParseLiveMessage(evt *events.Message, inbox string) (ingest.Event, bool) {
	return toEvent(evt.Info.Chat, evt.Info.ID, evt.Info.IsFromMe, evt.Info.Timestamp.UnixMilli(), evt.Message, inbox)
}

// ParseHistory normalizes a history sync blob. resolve maps conversation
// JIDs (LIDs in particular) to phone-number JIDs; nil leaves them as is.
func ParseHistory(data *waHistorySync.HistorySync, inbox string, resolve func(types.JID) types.JID) []ingest.Event {
	if data == nil {
		return nil
	}
	var out []ingest.Event
	for _, conv := range data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		if resolve != nil {
			chat = resolve(chat)
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			key := wmsg.GetKey()
			ev, ok := toEvent(chat, key.GetID(), key.GetFromMe(), int64(wmsg.GetMessageTimestamp())*1000, wmsg.GetMessage(), inbox)
			if ok {
				out = append(out, ev)
			}
		}
	}
	return out
}

func toEvent(chat types.JID, id string, fromMe bool, ts int64, msg *waE2E.Message, inbox string) (ingest.Event, bool) {
	chat = chat.ToNonAD()
	if chat.Server != types.DefaultUserServer || chat.User == "" || id == "" {
		return ingest.Event{}, false
	}
	body := extractTextBody(msg)
	if body == "" {
		kind := detectMessageType(msg)
		if kind == "unknown" {
			return ingest.Event{}, false
		}
		body = "[" + kind + "]"
	}
	dir := store.Inbound
	if fromMe {
		dir = store.Outbound
	}
	return ingest.Event{
		Channel:      Channel,
		ExternalID:   id,
		PatientPhone: "+" + chat.User,
		InboxAddress: inbox,
		Direction:    dir,
		Body:         body,
		Timestamp:    ts,
	}, true
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
