// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package sqlite persists cache images in a local SQLite file so the cache
// can be reloaded at startup. Nothing here is required for correctness: the
// cache is always reconstructable from the provider.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quizforge/offline-kit/pkg/cache"
	"github.com/quizforge/offline-kit/pkg/errors"
)

//go:embed schema.sql
var schema string

// Store persists cache entries in SQLite.
type Store struct {
	sqlDB *sql.DB
	path  string
}

var _ cache.Persister = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the cache image at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.StorageError("snapshot path is required", nil)
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, errors.StorageError("create snapshot dir", err)
	}

	// create the file private before sqlite opens it; the WAL and shared
	// memory files inherit its mode
	if err := createPrivate(cleanPath); err != nil {
		return nil, errors.StorageError("create snapshot file", err)
	}

	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError("open sqlite db", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.StorageError("ping sqlite db", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.StorageError("apply schema", err)
	}
	if err := restrictFiles(cleanPath); err != nil {
		_ = sqlDB.Close()
		return nil, errors.StorageError("restrict snapshot permissions", err)
	}
	return &Store{sqlDB: sqlDB, path: cleanPath}, nil
}

// Files returns the image file and the sidecar files sqlite keeps next to
// it. All of them hold profile data.
func Files(path string) []string {
	return []string{path, path + "-wal", path + "-shm", path + "-journal"}
}

func createPrivate(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// restrictFiles makes every existing image file private to the user.
func restrictFiles(path string) error {
	for _, p := range Files(path) {
		if err := os.Chmod(p, 0o600); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save replaces the stored image with entries. The slice order (least
// recently used first) is kept in the seq column.
func (s *Store) Save(ctx context.Context, entries []cache.Entry) error {
	if s == nil || s.sqlDB == nil {
		return errors.StorageError("storage is not configured", nil)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError("begin snapshot tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return errors.StorageError("clear snapshot", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cache_entries (
		   key, data, created_at, expires_at, access_count, last_accessed_at, seq
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.StorageError("prepare snapshot insert", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		data, err := cache.EncodeData(entry)
		if err != nil {
			return errors.StorageError(fmt.Sprintf("encode entry %q", entry.Key), err)
		}
		if _, err := stmt.ExecContext(ctx,
			entry.Key,
			[]byte(data),
			toMillis(entry.CreatedAt),
			toMillis(entry.ExpiresAt),
			entry.AccessCount,
			toMillis(entry.LastAccessedAt),
			i,
		); err != nil {
			return errors.StorageError(fmt.Sprintf("insert entry %q", entry.Key), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("commit snapshot", err)
	}
	if err := restrictFiles(s.path); err != nil {
		return errors.StorageError("restrict snapshot permissions", err)
	}
	return nil
}

// Load returns the stored image in saved order. Data is returned as
// json.RawMessage.
func (s *Store) Load(ctx context.Context) ([]cache.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, errors.StorageError("storage is not configured", nil)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, data, created_at, expires_at, access_count, last_accessed_at
		 FROM cache_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.StorageError("query snapshot", err)
	}
	defer rows.Close()

	var entries []cache.Entry
	for rows.Next() {
		var (
			entry                         cache.Entry
			data                          []byte
			createdAt, expiresAt, lastUse int64
		)
		if err := rows.Scan(&entry.Key, &data, &createdAt, &expiresAt, &entry.AccessCount, &lastUse); err != nil {
			return nil, errors.StorageError("scan snapshot row", err)
		}
		entry.Data = json.RawMessage(data)
		entry.Size = len(data)
		entry.CreatedAt = fromMillis(createdAt)
		entry.ExpiresAt = fromMillis(expiresAt)
		entry.LastAccessedAt = fromMillis(lastUse)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("iterate snapshot", err)
	}
	return entries, nil
}
