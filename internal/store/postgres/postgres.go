// Package postgres implements store.ResultStore on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/store"
)

type Config struct {
	Addr string
	User string
	Pass string
	Name string
}

type Store struct {
	db *pgxpool.Pool
}

// Connect opens a pool, checks connectivity and creates the results table if needed.
func Connect(ctx context.Context, c Config) (*Store, error) {
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := New(db)
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateTable creates the results table if it does not exist yet.
func (s *Store) CreateTable(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS ` + store.TableName + ` (
	id SERIAL PRIMARY KEY,
	username VARCHAR(255) NOT NULL,
	wpm INTEGER,
	errors INTEGER,
	incorrect_words INTEGER,
	correct_words INTEGER,
	backspace_count INTEGER,
	accuracy FLOAT,
	typed_words INTEGER,
	test_duration INTEGER,
	test_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	return nil
}

func (s *Store) InsertResult(ctx context.Context, r domain.Result) error {
	const stmt = `
INSERT INTO ` + store.TableName + `
	(username, wpm, errors, incorrect_words, correct_words, backspace_count, accuracy, typed_words, test_duration, test_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, CURRENT_TIMESTAMP));`

	var testDate *time.Time
	if !r.TestDate.IsZero() {
		testDate = &r.TestDate
	}

	_, err := s.db.Exec(ctx, stmt,
		r.Username, r.WPM, r.Errors, r.IncorrectWords, r.CorrectWords,
		r.BackspaceCount, r.Accuracy, r.TypedWords, r.TestDuration, testDate,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	return nil
}

func (s *Store) DeleteResultsByUser(ctx context.Context, username string) (int64, error) {
	const stmt = `DELETE FROM ` + store.TableName + ` WHERE username = $1;`

	tag, err := s.db.Exec(ctx, stmt, username)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) AggregateTopUsers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.Query(ctx, store.AggregateQuery("$1"), limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		if err := r.Scan(&e.Username, &e.MaxWPM, &e.AvgAccuracy, &e.TestsTaken); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect leaderboard: %w", err)
	}

	return entries, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}
