package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/suoware/blogwatch"
)

// SQLiteStore persists posts and category history in a local SQLite file.
// It backs CLI runs where no hosted tables are available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		author TEXT,
		date TEXT NOT NULL,
		description TEXT,
		category TEXT,
		summary TEXT,
		processed INTEGER
	);
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		categories TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetPostsByDate returns every post recorded for the given date.
func (s *SQLiteStore) GetPostsByDate(ctx context.Context, date string) ([]blogwatch.PostRecord, error) {
	return s.queryPosts(ctx, "WHERE date = ?", date)
}

// GetUnprocessedPostsByDate returns posts for the date that have not been
// categorized yet.
func (s *SQLiteStore) GetUnprocessedPostsByDate(ctx context.Context, date string) ([]blogwatch.PostRecord, error) {
	return s.queryPosts(ctx, "WHERE date = ? AND (processed IS NULL OR processed = 0)", date)
}

func (s *SQLiteStore) queryPosts(ctx context.Context, where string, args ...any) ([]blogwatch.PostRecord, error) {
	query := `
		SELECT id, title, url, author, date, description, category, summary, processed
		FROM posts ` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []blogwatch.PostRecord
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// UpsertPost writes one post, assigning an ID if the record has none.
func (s *SQLiteStore) UpsertPost(ctx context.Context, post *blogwatch.PostRecord) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}

	var categoryJSON sql.NullString
	if len(post.Category) > 0 {
		data, err := json.Marshal(post.Category)
		if err != nil {
			return fmt.Errorf("failed to marshal categories: %w", err)
		}
		categoryJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO posts (
			id, title, url, author, date, description, category, summary, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		post.ID,
		post.Title,
		post.URL,
		post.Author,
		post.PublishedDate,
		post.Description,
		categoryJSON,
		post.Summary,
		post.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", post.ID, err)
	}
	return nil
}

// BatchUpsertPosts writes many posts in one transaction. Fields an incoming
// record leaves empty are preserved from any existing record with the same
// ID.
func (s *SQLiteStore) BatchUpsertPosts(ctx context.Context, posts []blogwatch.PostRecord) error {
	for i := range posts {
		if posts[i].ID != "" {
			prev, err := s.getPost(ctx, posts[i].ID)
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			if err == nil {
				posts[i] = mergeRecords(prev, posts[i])
			}
		}
		if err := s.UpsertPost(ctx, &posts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) getPost(ctx context.Context, id string) (blogwatch.PostRecord, error) {
	query := `
		SELECT id, title, url, author, date, description, category, summary, processed
		FROM posts WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	return scanPost(row)
}

// AppendCategoriesForDate inserts a new history record with a fresh ID.
func (s *SQLiteStore) AppendCategoriesForDate(ctx context.Context, date string, categories []string) error {
	data, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO categories (id, date, categories) VALUES (?, ?, ?)",
		uuid.New().String(), date, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append categories for %s: %w", date, err)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (blogwatch.PostRecord, error) {
	var post blogwatch.PostRecord
	var author, description, categoryJSON, summary sql.NullString
	var processed sql.NullBool

	err := row.Scan(
		&post.ID, &post.Title, &post.URL, &author,
		&post.PublishedDate, &description, &categoryJSON, &summary, &processed,
	)
	if err == sql.ErrNoRows {
		return post, err
	}
	if err != nil {
		return post, fmt.Errorf("failed to scan post: %w", err)
	}

	post.Author = author.String
	post.Description = description.String
	post.Summary = summary.String
	post.Processed = processed.Valid && processed.Bool

	if categoryJSON.Valid {
		if err := json.Unmarshal([]byte(categoryJSON.String), &post.Category); err != nil {
			return post, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	return post, nil
}
