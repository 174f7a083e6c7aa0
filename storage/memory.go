// Package storage provides the persistence backends for characters,
// sessions, and session transcripts.
package storage

import (
	"context"
	"fmt"
	"sync"

	"dnd-dm-bot/game"
)

// Memory is an in-memory store for development and tests. All methods are
// safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	characters map[int64]game.Character
	sessions   map[int64]game.Session
	messages   map[int64][]game.Message
	nextID     int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		characters: make(map[int64]game.Character),
		sessions:   make(map[int64]game.Session),
		messages:   make(map[int64][]game.Message),
		nextID:     1,
	}
}

// PutCharacter stores a character, assigning an id if it has none, and
// returns the stored record.
func (m *Memory) PutCharacter(ctx context.Context, character game.Character) (game.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if character.ID == 0 {
		character.ID = m.nextID
		m.nextID++
	}
	m.characters[character.ID] = character
	return character, nil
}

// GetCharacter returns the character with the given id.
func (m *Memory) GetCharacter(ctx context.Context, id int64) (game.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	character, ok := m.characters[id]
	if !ok {
		return game.Character{}, fmt.Errorf("character %d: %w", id, game.ErrNotFound)
	}
	return character, nil
}

// UpdateCharacter replaces an existing character record.
func (m *Memory) UpdateCharacter(ctx context.Context, character game.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.characters[character.ID]; !ok {
		return fmt.Errorf("character %d: %w", character.ID, game.ErrNotFound)
	}
	m.characters[character.ID] = character
	return nil
}

// PutSession stores a session, assigning an id if it has none, and returns
// the stored record.
func (m *Memory) PutSession(ctx context.Context, session game.Session) (game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == 0 {
		session.ID = m.nextID
		m.nextID++
	}
	m.sessions[session.ID] = session
	return session, nil
}

// GetSession returns the session with the given id.
func (m *Memory) GetSession(ctx context.Context, id int64) (game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return game.Session{}, fmt.Errorf("session %d: %w", id, game.ErrNotFound)
	}
	return session, nil
}

// AppendMessage adds a message to the session transcript.
func (m *Memory) AppendMessage(ctx context.Context, sessionID int64, message game.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[sessionID] = append(m.messages[sessionID], message)
	return nil
}

// RecentMessages returns up to limit messages from the end of the session
// transcript, in chronological order.
func (m *Memory) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]game.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transcript := m.messages[sessionID]
	if limit > 0 && len(transcript) > limit {
		transcript = transcript[len(transcript)-limit:]
	}

	out := make([]game.Message, len(transcript))
	copy(out, transcript)
	return out, nil
}
