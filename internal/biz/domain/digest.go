package domain

import "time"

// ChannelCount is one entry in the ranked active-channel list.
type ChannelCount struct {
	ChannelName string
	Count       int
}

// DigestResult is the ephemeral output of one digest composition. It is
// handed to the delivery layer and never persisted.
type DigestResult struct {
	Title          string
	Color          string // card header template color
	TotalMessages  int
	AuthorCount    int
	ActiveChannels int
	TopChannels    []ChannelCount
	Narrative      string
	Fallback       bool      // narrative came from the local keyword summarizer
	Empty          bool      // nothing to summarize, no delivery expected
	GeneratedAt    time.Time // UTC
}
