package msgr

import (
	"context"
	"fmt"
	"sync"
)

// SentClip records one SendClip call on a ChanMessenger.
type SentClip struct {
	WAV     []byte
	Caption string
	Keys    []string
}

// ChanMessenger is an in-process Messenger for tests: it records every
// send and assigns deterministic message keys ("msg_1", "msg_2", ...).
// KeysPerClip controls how many keys each clip dispatch gets (default 2,
// mimicking a channel that addresses clip and caption separately).
type ChanMessenger struct {
	// KeysPerClip is the number of message keys assigned per clip.
	KeysPerClip int

	// FailSends makes every send return an error when true.
	FailSends bool

	mu    sync.Mutex
	next  int
	Clips []SentClip
	Texts []string
}

// SendClip implements Messenger.
func (c *ChanMessenger) SendClip(_ context.Context, wavData []byte, caption string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSends {
		return nil, fmt.Errorf("msgr: send failed")
	}
	n := c.KeysPerClip
	if n <= 0 {
		n = 2
	}
	keys := make([]string, n)
	for i := range keys {
		c.next++
		keys[i] = fmt.Sprintf("msg_%d", c.next)
	}
	c.Clips = append(c.Clips, SentClip{WAV: wavData, Caption: caption, Keys: keys})
	return keys, nil
}

// SendText implements Messenger.
func (c *ChanMessenger) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSends {
		return fmt.Errorf("msgr: send failed")
	}
	c.Texts = append(c.Texts, text)
	return nil
}

var _ Messenger = (*ChanMessenger)(nil)
