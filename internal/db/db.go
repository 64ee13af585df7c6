// Package db keeps the history of emrun sessions and their queue jobs in
// SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a session lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store holds a single-connection writer and a read-only pool over the same
// database file.
type Store struct {
	Writer *sql.DB
	Reader *sql.DB
}

func Open(path string) (*Store, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	writer, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open db writer %s: %w", path, err)
	}
	writer.SetMaxOpenConns(1)

	s := &Store{Writer: writer}
	if err := s.createSchema(); err != nil {
		writer.Close()
		return nil, err
	}

	rq := url.Values{}
	rq.Set("mode", "ro")
	rq.Set("_busy_timeout", "5000")
	rq.Set("_foreign_keys", "on")
	reader, err := sql.Open("sqlite3", "file:"+path+"?"+rq.Encode())
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open db reader %s: %w", path, err)
	}
	reader.SetMaxOpenConns(4)
	s.Reader = reader
	return s, nil
}

func (s *Store) Close() error {
	return errors.Join(s.Reader.Close(), s.Writer.Close())
}
