// Package telegram: chunked delivery for messages exceeding the Telegram
// length limit and for live narration streams.
package telegram

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// telegramMaxLength is the hard message size limit of the Bot API.
	telegramMaxLength = 4096

	// editInterval throttles message edits during live streaming so the
	// bot stays under Telegram's per-chat rate limit.
	editInterval = 2 * time.Second
)

// Streamer delivers long or streamed text to a chat in pieces.
type Streamer struct {
	bot       *Bot
	maxLength int
	rateLimit time.Duration
}

// NewStreamer creates a streamer bound to the bot.
func NewStreamer(bot *Bot) *Streamer {
	return &Streamer{
		bot:       bot,
		maxLength: telegramMaxLength,
		rateLimit: 100 * time.Millisecond,
	}
}

// Send delivers text to a chat, split at sentence boundaries when it
// exceeds the Telegram message limit.
func (s *Streamer) Send(chatID int64, text string) error {
	for i, chunk := range s.splitText(text) {
		if i > 0 {
			time.Sleep(s.rateLimit)
		}
		if err := s.bot.SendMessage(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendReply delivers text as a reply, split like Send.
func (s *Streamer) SendReply(messageID int, chatID int64, text string) error {
	for i, chunk := range s.splitText(text) {
		if i > 0 {
			time.Sleep(s.rateLimit)
		}
		if err := s.bot.SendReply(messageID, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Relay consumes a narration stream and delivers it to the chat in batched
// sends, flushing on an interval so the player sees text appear while the
// model is still generating. It returns the full accumulated text.
func (s *Streamer) Relay(ctx context.Context, chatID int64, stream <-chan string) (string, error) {
	var full strings.Builder
	var pending strings.Builder

	ticker := time.NewTicker(editInterval)
	defer ticker.Stop()

	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		if err := s.Send(chatID, pending.String()); err != nil {
			return err
		}
		pending.Reset()
		return nil
	}

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				if err := flush(); err != nil {
					return full.String(), err
				}
				return full.String(), nil
			}
			full.WriteString(chunk)
			pending.WriteString(chunk)
		case <-ticker.C:
			if err := flush(); err != nil {
				return full.String(), err
			}
			s.bot.SendTyping(chatID)
		case <-ctx.Done():
			log.Printf("[TELEGRAM] Stream relay cancelled for chat %d", chatID)
			return full.String(), ctx.Err()
		}
	}
}

// splitText splits text into chunks that fit the message limit, preferring
// sentence and line boundaries.
func (s *Streamer) splitText(text string) []string {
	if len(text) <= s.maxLength {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > s.maxLength {
		// The window must end on a rune boundary or the fallback cut
		// could slice a multi-byte rune in half.
		end := s.maxLength
		for end > 0 && !utf8.RuneStart(remaining[end]) {
			end--
		}
		cut := bestSplitPoint(remaining[:end])
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// bestSplitPoint returns the index just past the last sentence terminator,
// newline, or space, falling back to the full length.
func bestSplitPoint(text string) int {
	for _, sep := range []string{". ", "!\n", "?\n", "\n", "! ", "? ", " "} {
		if pos := strings.LastIndex(text, sep); pos > 0 {
			return pos + len(sep)
		}
	}
	return len(text)
}
