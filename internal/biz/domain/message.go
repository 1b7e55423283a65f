package domain

import "time"

// Message is one buffered chat message. It is created once at ingestion
// and never mutated; the retention buffer owns it until pruning.
type Message struct {
	Author      string    // sender display name
	Content     string    // plain text content
	Timestamp   time.Time // creation instant, always UTC
	ChannelID   string    // origin sub-channel (group chat) id
	ChannelName string    // origin sub-channel display name
	Attachments int       // attachment count
	Embeds      int       // embed/card count
}

// ChannelWindow is the slice of a single sub-channel's messages that fall
// inside a query window, oldest first. Windows for one tenant are returned
// in first-appended channel order so downstream ranking ties are stable.
type ChannelWindow struct {
	ChannelID   string
	ChannelName string
	Messages    []Message
}
