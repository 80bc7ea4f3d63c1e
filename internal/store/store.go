package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Store struct {
	db *sql.DB
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserDrug is one saved catalog reference. At most one row exists per
// (user, rxcui) pair; rows are immutable after creation.
type UserDrug struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RxCUI     string    `json:"rxcui"`
	Name      string    `json:"name"`
	BaseNames []string  `json:"base_names"`
	DoseForms []string  `json:"dose_forms"`
	CreatedAt time.Time `json:"created_at"`
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize access: sqlite allows one writer and the pure Go driver
	// reports SQLITE_BUSY instead of queueing concurrent transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for Litestream compatibility
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Set dialect
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}

	// Set Base FS
	goose.SetBaseFS(embedMigrations)

	// Run migrations
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -- Users --

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (email, password_hash) VALUES (?, ?)", email, passwordHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// -- Saved drugs --

// FindOrCreateUserDrug inserts a saved drug unless the (user, rxcui) pair
// already exists, in which case the existing row is returned untouched.
// The select-then-insert runs in a transaction; if a concurrent add wins
// the insert race, the unique constraint fires and the loser returns the
// winner's row with created=false.
func (s *Store) FindOrCreateUserDrug(ctx context.Context, userID int64, rxcui, name string, baseNames, doseForms []string) (*UserDrug, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	existing, err := scanUserDrug(tx.QueryRowContext(ctx,
		"SELECT id, user_id, rxcui, name, base_names, dose_forms, created_at FROM user_drugs WHERE user_id = ? AND rxcui = ?",
		userID, rxcui))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	baseJSON, err := json.Marshal(emptyIfNil(baseNames))
	if err != nil {
		return nil, false, err
	}
	doseJSON, err := json.Marshal(emptyIfNil(doseForms))
	if err != nil {
		return nil, false, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO user_drugs (user_id, rxcui, name, base_names, dose_forms) VALUES (?, ?, ?, ?, ?)",
		userID, rxcui, name, string(baseJSON), string(doseJSON))
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			// Lost the race: another add committed this pair first.
			winner, selErr := s.GetUserDrug(ctx, userID, rxcui)
			if selErr != nil {
				return nil, false, selErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}

	created, err := scanUserDrug(tx.QueryRowContext(ctx,
		"SELECT id, user_id, rxcui, name, base_names, dose_forms, created_at FROM user_drugs WHERE id = ?", id))
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *Store) GetUserDrug(ctx context.Context, userID int64, rxcui string) (*UserDrug, error) {
	return scanUserDrug(s.db.QueryRowContext(ctx,
		"SELECT id, user_id, rxcui, name, base_names, dose_forms, created_at FROM user_drugs WHERE user_id = ? AND rxcui = ?",
		userID, rxcui))
}

// DeleteUserDrug removes the owner's row for rxcui. Returns false when no
// such row existed.
func (s *Store) DeleteUserDrug(ctx context.Context, userID int64, rxcui string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM user_drugs WHERE user_id = ? AND rxcui = ?", userID, rxcui)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUserDrugs returns the owner's saved drugs, most recently added first.
func (s *Store) ListUserDrugs(ctx context.Context, userID int64) ([]UserDrug, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, rxcui, name, base_names, dose_forms, created_at FROM user_drugs WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drugs := []UserDrug{}
	for rows.Next() {
		var d UserDrug
		var baseJSON, doseJSON string
		if err := rows.Scan(&d.ID, &d.UserID, &d.RxCUI, &d.Name, &baseJSON, &doseJSON, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalLists(&d, baseJSON, doseJSON); err != nil {
			return nil, err
		}
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserDrug(row rowScanner) (*UserDrug, error) {
	var d UserDrug
	var baseJSON, doseJSON string
	err := row.Scan(&d.ID, &d.UserID, &d.RxCUI, &d.Name, &baseJSON, &doseJSON, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalLists(&d, baseJSON, doseJSON); err != nil {
		return nil, err
	}
	return &d, nil
}

func unmarshalLists(d *UserDrug, baseJSON, doseJSON string) error {
	if err := json.Unmarshal([]byte(baseJSON), &d.BaseNames); err != nil {
		return fmt.Errorf("bad base_names for drug %d: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(doseJSON), &d.DoseForms); err != nil {
		return fmt.Errorf("bad dose_forms for drug %d: %w", d.ID, err)
	}
	return nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
