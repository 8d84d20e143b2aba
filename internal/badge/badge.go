// Package badge computes the unread badge shown in the dashboard header.
package badge

import (
	"strconv"

	"github.com/sumithjoshi99/medconnect/internal/conversation"
)

// Screen identifies a top-level view.
type Screen string

const (
	Dashboard Screen = "dashboard"
	Messaging Screen = "messaging"
	Patients  Screen = "patients"
	Settings  Screen = "settings"
)

// DefaultCap is the threshold above which the display reads "99+".
const DefaultCap = 99

// GlobalLabel labels the badge when it counts every inbox.
const GlobalLabel = "All locations"

// Input is what the badge is derived from. Scoped and InboxLabel only
// matter on the messaging screen. Cap defaults to DefaultCap when zero.
type Input struct {
	Screen     Screen
	Global     []conversation.Conversation
	Scoped     []conversation.Conversation
	InboxLabel string
	Cap        int
}

// Badge is the rendered unread badge. Count is exact; Display may be capped.
type Badge struct {
	Count   int
	Display string
	Label   string
}

// Calculate picks the list for the current screen and sums its unread counts.
// Only the messaging screen is inbox-scoped.
func Calculate(in Input) Badge {
	list, label := in.Global, GlobalLabel
	if in.Screen == Messaging {
		list = in.Scoped
		if in.InboxLabel != "" {
			label = in.InboxLabel
		}
	}
	count := conversation.TotalUnread(list)
	return Badge{Count: count, Display: Format(count, in.Cap), Label: label}
}

// Format renders count, capping above limit as "<limit>+". An empty string
// means no badge.
func Format(count, limit int) string {
	if limit <= 0 {
		limit = DefaultCap
	}
	switch {
	case count <= 0:
		return ""
	case count > limit:
		return strconv.Itoa(limit) + "+"
	default:
		return strconv.Itoa(count)
	}
}
