// Package msgr is earshot's boundary to the asynchronous messaging channel
// a human answers identification requests on.
//
// The pipeline only needs two outbound operations (send a clip with a
// caption, send plain text) and one inbound event (a reply referencing an
// earlier message). Everything else (chat platform, webhooks, retries on
// the wire) belongs to an external bridge process. [Bridge] is the
// reference client for such a process, speaking JSON frames over a
// websocket; [ChanMessenger] is the in-process fake used by tests.
package msgr

import "context"

// Messenger sends messages to the human identification channel.
//
// SendClip returns every message key the channel assigned to the dispatch.
// Channels that deliver a clip and its caption as two separately
// addressable messages return two keys; a reply may reference either.
type Messenger interface {
	// SendClip sends an audio clip with a caption and returns the
	// channel-assigned message keys.
	SendClip(ctx context.Context, wavData []byte, caption string) ([]string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, text string) error
}

// Inbound is a reply event from the messaging channel.
type Inbound struct {
	// Text is the reply body.
	Text string `json:"text"`

	// RepliedTo is the message key the reply references, if any.
	RepliedTo string `json:"replied_to"`
}
