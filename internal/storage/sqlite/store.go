// Package sqlite persists chatbots and their training data in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

// Store implements chatbot.Store on top of database/sql with the pure Go SQLite driver.
type Store struct {
	db *sql.DB
}

var _ chatbot.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite 同一时间只允许一个写入者。
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Seed inserts bots that do not exist yet. Existing rows are left untouched.
func (s *Store) Seed(ctx context.Context, bots []chatbot.Chatbot) error {
	for _, bot := range bots {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO chatbots (id, name, description, welcome_message, messages, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			bot.ID, bot.Name, bot.Description, bot.WelcomeMessage, bot.Messages,
			formatTime(bot.CreatedAt), formatTime(bot.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("seed chatbot %s: %w", bot.ID, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chatbots (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL,
		welcome_message TEXT NOT NULL,
		messages        INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS training (
		bot_id             TEXT PRIMARY KEY REFERENCES chatbots(id) ON DELETE CASCADE,
		website_url        TEXT,
		website_content    TEXT,
		website_fetched_at TEXT,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qa_pairs (
		bot_id   TEXT NOT NULL REFERENCES chatbots(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer   TEXT NOT NULL,
		source   TEXT NOT NULL,
		PRIMARY KEY (bot_id, position)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]chatbot.Chatbot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, welcome_message, messages, created_at, updated_at
		FROM chatbots
		ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
	}
	defer rows.Close()

	bots := make([]chatbot.Chatbot, 0, 8)
	for rows.Next() {
		bot, err := scanChatbot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
	}
	return bots, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (chatbot.Chatbot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, welcome_message, messages, created_at, updated_at
		FROM chatbots WHERE id = ?`, id)

	bot, err := scanChatbot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chatbot.Chatbot{}, chatbot.ErrNotFound
	}
	return bot, err
}

func (s *Store) Create(ctx context.Context, bot chatbot.Chatbot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatbots (id, name, description, welcome_message, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			welcome_message = excluded.welcome_message,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		bot.ID, bot.Name, bot.Description, bot.WelcomeMessage, bot.Messages,
		formatTime(bot.CreatedAt), formatTime(bot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create chatbot %s: %w", bot.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM qa_pairs WHERE bot_id = ?",
			"DELETE FROM training WHERE bot_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete training of %s: %w", id, err)
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM chatbots WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete chatbot %s: %w", id, err)
		}
		return requireAffected(res)
	})
}

func (s *Store) IncrementMessages(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chatbots SET messages = messages + 1, updated_at = ? WHERE id = ?",
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("increment messages of %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *Store) SaveTraining(ctx context.Context, dataset chatbot.Dataset) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := botExists(ctx, tx, dataset.BotID); err != nil {
			return err
		}

		var url, content, fetchedAt sql.NullString
		if dataset.Website != nil {
			url = sql.NullString{String: dataset.Website.URL, Valid: true}
			content = sql.NullString{String: dataset.Website.Content, Valid: true}
			fetchedAt = sql.NullString{String: formatTime(dataset.Website.FetchedAt), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO training (bot_id, website_url, website_content, website_fetched_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(bot_id) DO UPDATE SET
				website_url = excluded.website_url,
				website_content = excluded.website_content,
				website_fetched_at = excluded.website_fetched_at,
				updated_at = excluded.updated_at`,
			dataset.BotID, url, content, fetchedAt, formatTime(dataset.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("save training of %s: %w", dataset.BotID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM qa_pairs WHERE bot_id = ?", dataset.BotID); err != nil {
			return fmt.Errorf("clear pairs of %s: %w", dataset.BotID, err)
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO qa_pairs (bot_id, position, question, answer, source) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare pair insert: %w", err)
		}
		defer stmt.Close()

		for i, pair := range dataset.QAPairs {
			if _, err := stmt.ExecContext(ctx, dataset.BotID, i, pair.Question, pair.Answer, string(pair.Source)); err != nil {
				return fmt.Errorf("insert pair #%d of %s: %w", i+1, dataset.BotID, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadTraining(ctx context.Context, botID string) (chatbot.Dataset, error) {
	if err := botExists(ctx, s.db, botID); err != nil {
		return chatbot.Dataset{}, err
	}

	dataset := chatbot.Dataset{BotID: botID, QAPairs: []chatbot.QAPair{}}

	var url, content, fetchedAt, updatedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT website_url, website_content, website_fetched_at, updated_at
		FROM training WHERE bot_id = ?`, botID).Scan(&url, &content, &fetchedAt, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return chatbot.Dataset{}, fmt.Errorf("load training of %s: %w", botID, err)
	default:
		dataset.UpdatedAt = parseTime(updatedAt.String)
		if url.Valid {
			dataset.Website = &chatbot.Website{
				URL:       url.String,
				Content:   content.String,
				FetchedAt: parseTime(fetchedAt.String),
			}
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT question, answer, source FROM qa_pairs
		WHERE bot_id = ? ORDER BY position ASC`, botID)
	if err != nil {
		return chatbot.Dataset{}, fmt.Errorf("load pairs of %s: %w", botID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pair chatbot.QAPair
		var source string
		if err := rows.Scan(&pair.Question, &pair.Answer, &source); err != nil {
			return chatbot.Dataset{}, fmt.Errorf("scan pair: %w", err)
		}
		pair.Source = chatbot.PairSource(source)
		dataset.QAPairs = append(dataset.QAPairs, pair)
	}
	if err := rows.Err(); err != nil {
		return chatbot.Dataset{}, fmt.Errorf("load pairs of %s: %w", botID, err)
	}
	return dataset, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func botExists(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM chatbots WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return chatbot.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup chatbot %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChatbot(row scanner) (chatbot.Chatbot, error) {
	var bot chatbot.Chatbot
	var createdAt, updatedAt string
	if err := row.Scan(&bot.ID, &bot.Name, &bot.Description, &bot.WelcomeMessage, &bot.Messages, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chatbot.Chatbot{}, err
		}
		return chatbot.Chatbot{}, fmt.Errorf("scan chatbot: %w", err)
	}
	bot.CreatedAt = parseTime(createdAt)
	bot.UpdatedAt = parseTime(updatedAt)
	return bot, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return chatbot.ErrNotFound
	}
	return nil
}

// 时间以固定宽度的 UTC 文本存储，按字典序排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
