package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"dnd-dm-bot/game"
)

// SQL is a database-backed store. It targets Postgres in production and
// works against SQLite in tests; the schema and queries stay within the
// dialect both drivers share.
type SQL struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects to the database behind dsn with the given driver, checks
// the connection, and ensures the schema exists.
func OpenSQL(driver, dsn string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQL{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("[STORAGE] Connected to %s database", driver)
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS characters (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			class TEXT NOT NULL,
			level INTEGER NOT NULL,
			hit_points INTEGER NOT NULL,
			max_hit_points INTEGER NOT NULL,
			armor_class INTEGER NOT NULL,
			strength INTEGER NOT NULL,
			dexterity INTEGER NOT NULL,
			constitution INTEGER NOT NULL,
			intelligence INTEGER NOT NULL,
			wisdom INTEGER NOT NULL,
			charisma INTEGER NOT NULL,
			skills TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			in_combat BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS session_participants (
			session_id BIGINT NOT NULL,
			character_id BIGINT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (session_id, character_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id BIGINT NOT NULL,
			seq INTEGER NOT NULL,
			role INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

// rebind translates ? placeholders into the $n form Postgres expects.
func (s *SQL) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateCharacter inserts a character record. The caller supplies the id.
func (s *SQL) CreateCharacter(ctx context.Context, character game.Character) error {
	query := s.rebind(`INSERT INTO characters
		(id, name, class, level, hit_points, max_hit_points, armor_class,
		 strength, dexterity, constitution, intelligence, wisdom, charisma, skills)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		character.ID, character.Name, character.Class, character.Level,
		character.HitPoints, character.MaxHitPoints, character.ArmorClass,
		character.AbilityScores.Strength, character.AbilityScores.Dexterity,
		character.AbilityScores.Constitution, character.AbilityScores.Intelligence,
		character.AbilityScores.Wisdom, character.AbilityScores.Charisma,
		strings.Join(character.Skills, ","))
	if err != nil {
		return fmt.Errorf("create character %d: %w", character.ID, err)
	}
	return nil
}

// GetCharacter returns the character with the given id.
func (s *SQL) GetCharacter(ctx context.Context, id int64) (game.Character, error) {
	query := s.rebind(`SELECT id, name, class, level, hit_points, max_hit_points, armor_class,
		strength, dexterity, constitution, intelligence, wisdom, charisma, skills
		FROM characters WHERE id = ?`)

	var c game.Character
	var skills string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Class, &c.Level,
		&c.HitPoints, &c.MaxHitPoints, &c.ArmorClass,
		&c.AbilityScores.Strength, &c.AbilityScores.Dexterity,
		&c.AbilityScores.Constitution, &c.AbilityScores.Intelligence,
		&c.AbilityScores.Wisdom, &c.AbilityScores.Charisma, &skills)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Character{}, fmt.Errorf("character %d: %w", id, game.ErrNotFound)
	}
	if err != nil {
		return game.Character{}, fmt.Errorf("get character %d: %w", id, err)
	}

	if skills != "" {
		c.Skills = strings.Split(skills, ",")
	}
	return c, nil
}

// UpdateCharacter replaces an existing character record.
func (s *SQL) UpdateCharacter(ctx context.Context, character game.Character) error {
	query := s.rebind(`UPDATE characters SET
		name = ?, class = ?, level = ?, hit_points = ?, max_hit_points = ?, armor_class = ?,
		strength = ?, dexterity = ?, constitution = ?, intelligence = ?, wisdom = ?, charisma = ?,
		skills = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		character.Name, character.Class, character.Level,
		character.HitPoints, character.MaxHitPoints, character.ArmorClass,
		character.AbilityScores.Strength, character.AbilityScores.Dexterity,
		character.AbilityScores.Constitution, character.AbilityScores.Intelligence,
		character.AbilityScores.Wisdom, character.AbilityScores.Charisma,
		strings.Join(character.Skills, ","), character.ID)
	if err != nil {
		return fmt.Errorf("update character %d: %w", character.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update character %d: %w", character.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("character %d: %w", character.ID, game.ErrNotFound)
	}
	return nil
}

// CreateSession inserts a session record and its participant list.
func (s *SQL) CreateSession(ctx context.Context, session game.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create session %d: %w", session.ID, err)
	}
	defer tx.Rollback()

	query := s.rebind(`INSERT INTO sessions (id, name, in_combat) VALUES (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, session.ID, session.Name, session.InCombat); err != nil {
		return fmt.Errorf("create session %d: %w", session.ID, err)
	}

	participant := s.rebind(`INSERT INTO session_participants (session_id, character_id, position) VALUES (?, ?, ?)`)
	for i, characterID := range session.ParticipantIDs {
		if _, err := tx.ExecContext(ctx, participant, session.ID, characterID, i); err != nil {
			return fmt.Errorf("create session %d: %w", session.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create session %d: %w", session.ID, err)
	}
	return nil
}

// GetSession returns the session with the given id, participants in their
// stored order.
func (s *SQL) GetSession(ctx context.Context, id int64) (game.Session, error) {
	query := s.rebind(`SELECT id, name, in_combat FROM sessions WHERE id = ?`)

	var session game.Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.Name, &session.InCombat)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, fmt.Errorf("session %d: %w", id, game.ErrNotFound)
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("get session %d: %w", id, err)
	}

	participants := s.rebind(`SELECT character_id FROM session_participants WHERE session_id = ? ORDER BY position`)
	rows, err := s.db.QueryContext(ctx, participants, id)
	if err != nil {
		return game.Session{}, fmt.Errorf("get session %d participants: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var characterID int64
		if err := rows.Scan(&characterID); err != nil {
			return game.Session{}, fmt.Errorf("get session %d participants: %w", id, err)
		}
		session.ParticipantIDs = append(session.ParticipantIDs, characterID)
	}
	if err := rows.Err(); err != nil {
		return game.Session{}, fmt.Errorf("get session %d participants: %w", id, err)
	}
	return session, nil
}

// AppendMessage adds a message to the session transcript.
func (s *SQL) AppendMessage(ctx context.Context, sessionID int64, message game.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var seq int
	next := s.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`)
	if err := tx.QueryRowContext(ctx, next, sessionID).Scan(&seq); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	insert := s.rebind(`INSERT INTO messages (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, sessionID, seq, int(message.Role), message.Content, message.Timestamp); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages from the end of the session
// transcript, in chronological order.
func (s *SQL) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]game.Message, error) {
	query := s.rebind(`SELECT role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY seq DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var messages []game.Message
	for rows.Next() {
		var message game.Message
		var role int
		if err := rows.Scan(&role, &message.Content, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("recent messages: %w", err)
		}
		message.Role = game.MessageRole(role)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	// Rows arrive newest first; flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
