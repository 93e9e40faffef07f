// Package memory persists repository profiles, user preferences and
// per-repository suggestion history between runs.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// Bank manages the SQLite database backing long-term memory. Profile reads
// go through a small LRU so watch-mode runs do not hit the database for
// repositories analyzed the previous interval.
type Bank struct {
	db       *sql.DB
	profiles *profileCache
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string, logger zerolog.Logger) (*Bank, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b := &Bank{
		db:       db,
		profiles: newProfileCache(profileCacheSize),
		logger:   logger.With().Str("component", "memory").Logger(),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	b.logger.Info().Str("path", dbPath).Msg("memory bank opened")
	return b, nil
}

// Ping verifies the database is reachable.
func (b *Bank) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database connection.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *Bank) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repository_profiles (
		repo_full_name TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		preferences TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suggestion_history (
		id TEXT PRIMARY KEY,
		repo_full_name TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		suggestion TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_suggestions_repo ON suggestion_history(repo_full_name);
	CREATE INDEX IF NOT EXISTS idx_suggestions_title ON suggestion_history(repo_full_name, normalized_title);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SaveProfile stores a repository profile, replacing any previous one.
func (b *Bank) SaveProfile(profile *models.RepositoryProfile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.db.Exec(`
	INSERT OR REPLACE INTO repository_profiles (repo_full_name, profile, updated_at)
	VALUES (?, ?, ?)`,
		profile.Repository.FullName, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	b.profiles.put(profile.Repository.FullName, profile)
	return nil
}

// LoadProfile retrieves a repository profile. Returns (nil, nil) when no
// profile exists or the stored row no longer parses.
func (b *Bank) LoadProfile(repoFullName string) (*models.RepositoryProfile, error) {
	if profile, ok := b.profiles.get(repoFullName); ok {
		return profile, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var data string
	err := b.db.QueryRow(
		`SELECT profile FROM repository_profiles WHERE repo_full_name = ?`,
		repoFullName,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var profile models.RepositoryProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		b.logger.Warn().Err(err).Str("repo", repoFullName).Msg("corrupt profile row, treating as missing")
		return nil, nil
	}
	b.profiles.put(repoFullName, &profile)
	return &profile, nil
}

// DeleteProfile removes a stored profile. Returns true if one was deleted.
func (b *Bank) DeleteProfile(repoFullName string) (bool, error) {
	b.profiles.remove(repoFullName)

	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.db.Exec(`DELETE FROM repository_profiles WHERE repo_full_name = ?`, repoFullName)
	if err != nil {
		return false, fmt.Errorf("failed to delete profile: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListProfiles returns the full names of all stored repository profiles.
func (b *Bank) ListProfiles() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.Query(`SELECT repo_full_name FROM repository_profiles ORDER BY repo_full_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan profile name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SavePreferences stores user preferences, replacing any previous value.
func (b *Bank) SavePreferences(prefs *models.UserPreferences) error {
	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.db.Exec(`
	INSERT OR REPLACE INTO user_preferences (user_id, preferences, updated_at)
	VALUES (?, ?, ?)`,
		prefs.UserID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// LoadPreferences retrieves preferences for a user. Returns (nil, nil) when
// none exist or the stored row no longer parses.
func (b *Bank) LoadPreferences(userID string) (*models.UserPreferences, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var data string
	err := b.db.QueryRow(
		`SELECT preferences FROM user_preferences WHERE user_id = ?`,
		userID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	var prefs models.UserPreferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		b.logger.Warn().Err(err).Str("user", userID).Msg("corrupt preferences row, treating as missing")
		return nil, nil
	}
	return &prefs, nil
}

// SaveSuggestions appends suggestions to a repository's history. Called only
// after an issue is successfully filed, so unapproved suggestions never enter
// the dedup scope.
func (b *Bank) SaveSuggestions(repoFullName string, suggestions []models.MaintenanceSuggestion) error {
	for i := range suggestions {
		if err := suggestions[i].Validate(); err != nil {
			return fmt.Errorf("invalid suggestion %q: %w", suggestions[i].Title, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for i := range suggestions {
		s := &suggestions[i]
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshaling suggestion: %w", err)
		}
		_, err = tx.Exec(`
		INSERT OR REPLACE INTO suggestion_history (id, repo_full_name, normalized_title, suggestion, created_at)
		VALUES (?, ?, ?, ?, ?)`,
			s.ID, repoFullName, s.NormalizedTitle(), string(data), now)
		if err != nil {
			return fmt.Errorf("failed to save suggestion: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSuggestions returns the stored suggestion history for a repository.
// Rows that no longer parse are skipped.
func (b *Bank) LoadSuggestions(repoFullName string) ([]models.MaintenanceSuggestion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.Query(
		`SELECT suggestion FROM suggestion_history WHERE repo_full_name = ? ORDER BY created_at`,
		repoFullName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []models.MaintenanceSuggestion
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		var s models.MaintenanceSuggestion
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			b.logger.Warn().Err(err).Str("repo", repoFullName).Msg("corrupt suggestion row skipped")
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// ExistingTitles returns the normalized titles in a repository's history,
// the dedup scope for new candidates.
func (b *Bank) ExistingTitles(repoFullName string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, err := b.db.Query(
		`SELECT normalized_title FROM suggestion_history WHERE repo_full_name = ? ORDER BY created_at`,
		repoFullName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// SuggestionExists reports whether a suggestion with this title is already
// in the repository's history.
func (b *Bank) SuggestionExists(repoFullName, title string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var n int
	err := b.db.QueryRow(
		`SELECT COUNT(*) FROM suggestion_history WHERE repo_full_name = ? AND normalized_title = ?`,
		repoFullName, models.NormalizeTitle(title),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check suggestion: %w", err)
	}
	return n > 0, nil
}

// DeleteSuggestions removes a repository's suggestion history. Returns true
// if any rows were deleted.
func (b *Bank) DeleteSuggestions(repoFullName string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.db.Exec(`DELETE FROM suggestion_history WHERE repo_full_name = ?`, repoFullName)
	if err != nil {
		return false, fmt.Errorf("failed to delete suggestions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
