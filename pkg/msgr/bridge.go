package msgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/earshothq/earshot/pkg/encoding"
	"github.com/earshothq/earshot/pkg/jsontime"
)

// Bridge speaks JSON frames over a websocket to an external chat bridge.
//
// Outbound frames carry an id; the bridge acks each with the same id and
// the message keys it assigned. Inbound reply events have no id and are
// delivered on the Inbound channel.
//
//	→ {"id":1,"type":"clip","audio":"<base64 wav>","caption":"..."}
//	← {"id":1,"message_keys":["msg_81","msg_82"]}
//	→ {"id":2,"type":"text","text":"..."}
//	← {"id":2,"message_keys":[]}
//	← {"type":"reply","text":"Dana","replied_to":"msg_81"}
//
// Reconnection is the bridge process's concern; when the connection drops,
// sends fail and the Inbound channel closes. The caller decides whether to
// dial again.
type Bridge struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	ackMu sync.Mutex
	acks  map[int64]chan ackFrame

	nextID atomic.Int64

	inbound chan Inbound

	closeOnce sync.Once
	closeErr  error
}

type outFrame struct {
	ID      int64                  `json:"id"`
	Type    string                 `json:"type"`
	Audio   encoding.StdBase64Data `json:"audio,omitempty"`
	Caption string                 `json:"caption,omitempty"`
	Text    string                 `json:"text,omitempty"`
	SentAt  jsontime.Milli         `json:"sent_at"`
}

type ackFrame struct {
	ID          int64    `json:"id"`
	Type        string   `json:"type"`
	MessageKeys []string `json:"message_keys"`
	Error       string   `json:"error,omitempty"`

	// reply event fields
	Text      string `json:"text,omitempty"`
	RepliedTo string `json:"replied_to,omitempty"`
}

// DialBridge connects to a chat bridge and starts the read loop.
// Pass nil for logger to use slog.Default().
func DialBridge(ctx context.Context, url string, logger *slog.Logger) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("msgr: dial bridge %s: %w", url, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		conn:    conn,
		logger:  logger,
		acks:    make(map[int64]chan ackFrame),
		inbound: make(chan Inbound, 16),
	}
	go b.readLoop()
	return b, nil
}

// Inbound returns the channel of reply events. It closes when the
// connection drops.
func (b *Bridge) Inbound() <-chan Inbound {
	return b.inbound
}

// SendClip implements Messenger.
func (b *Bridge) SendClip(ctx context.Context, wavData []byte, caption string) ([]string, error) {
	ack, err := b.roundTrip(ctx, outFrame{
		Type:    "clip",
		Audio:   wavData,
		Caption: caption,
	})
	if err != nil {
		return nil, err
	}
	if len(ack.MessageKeys) == 0 {
		return nil, errors.New("msgr: bridge assigned no message keys to clip")
	}
	return ack.MessageKeys, nil
}

// SendText implements Messenger.
func (b *Bridge) SendText(ctx context.Context, text string) error {
	_, err := b.roundTrip(ctx, outFrame{Type: "text", Text: text})
	return err
}

func (b *Bridge) roundTrip(ctx context.Context, f outFrame) (*ackFrame, error) {
	f.ID = b.nextID.Add(1)
	f.SentAt = jsontime.NowEpochMilli()

	ch := make(chan ackFrame, 1)
	b.ackMu.Lock()
	b.acks[f.ID] = ch
	b.ackMu.Unlock()
	defer func() {
		b.ackMu.Lock()
		delete(b.acks, f.ID)
		b.ackMu.Unlock()
	}()

	b.writeMu.Lock()
	err := b.conn.WriteJSON(f)
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("msgr: write %s frame: %w", f.Type, err)
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return nil, errors.New("msgr: connection closed before ack")
		}
		if ack.Error != "" {
			return nil, fmt.Errorf("msgr: bridge rejected %s: %s", f.Type, ack.Error)
		}
		return &ack, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Bridge) readLoop() {
	defer func() {
		// Unblock all in-flight round trips, then the inbound consumer.
		b.ackMu.Lock()
		for id, ch := range b.acks {
			close(ch)
			delete(b.acks, id)
		}
		b.ackMu.Unlock()
		close(b.inbound)
	}()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				b.logger.Warn("bridge connection lost", "err", err)
			}
			return
		}
		var f ackFrame
		if err := json.Unmarshal(data, &f); err != nil {
			b.logger.Warn("bridge sent malformed frame", "err", err)
			continue
		}
		if f.Type == "reply" {
			b.inbound <- Inbound{Text: f.Text, RepliedTo: f.RepliedTo}
			continue
		}
		b.ackMu.Lock()
		ch, ok := b.acks[f.ID]
		b.ackMu.Unlock()
		if !ok {
			b.logger.Debug("unmatched ack frame", "id", f.ID)
			continue
		}
		ch <- f
	}
}

// Close closes the websocket connection. The Inbound channel closes once
// the read loop observes the closure.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.writeMu.Lock()
		b.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.writeMu.Unlock()
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}

var _ Messenger = (*Bridge)(nil)
