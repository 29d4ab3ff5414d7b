package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Player represents a registered player identity in the database.
type Player struct {
	ID           int64
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// ErrPlayerNotFound is returned when a player lookup yields no results.
var ErrPlayerNotFound = errors.New("player not found")

// ErrPlayerExists is returned when attempting to register a duplicate name.
var ErrPlayerExists = errors.New("player already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PlayerRepository provides player persistence operations.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Create inserts a new player with a bcrypt-hashed password.
//
// Precondition: name must be non-empty; password must be non-empty.
// Postcondition: Returns the created Player with ID and CreatedAt set,
// or ErrPlayerExists if the name is taken.
func (r *PlayerRepository) Create(ctx context.Context, name, password string) (Player, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Player{}, fmt.Errorf("hashing password: %w", err)
	}

	var p Player
	err = r.db.QueryRow(ctx,
		`INSERT INTO players (name, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, name, password_hash, created_at, last_login_at`,
		name, hash,
	).Scan(&p.ID, &p.Name, &p.PasswordHash, &p.CreatedAt, &p.LastLoginAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Player{}, ErrPlayerExists
		}
		return Player{}, fmt.Errorf("inserting player: %w", err)
	}

	return p, nil
}

// Authenticate verifies credentials and records the login time.
//
// Precondition: name and password must be non-empty.
// Postcondition: Returns the Player if credentials are valid,
// ErrPlayerNotFound if the name doesn't exist,
// or ErrInvalidCredentials if the password is wrong.
func (r *PlayerRepository) Authenticate(ctx context.Context, name, password string) (Player, error) {
	p, err := r.GetByName(ctx, name)
	if err != nil {
		return Player{}, err
	}

	if !CheckPassword(password, p.PasswordHash) {
		return Player{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := r.db.Exec(ctx,
		`UPDATE players SET last_login_at = $1 WHERE id = $2`,
		now, p.ID,
	); err != nil {
		return Player{}, fmt.Errorf("recording login: %w", err)
	}
	p.LastLoginAt = &now

	return p, nil
}

// GetByName retrieves a player by name.
//
// Precondition: name must be non-empty.
// Postcondition: Returns the Player or ErrPlayerNotFound.
func (r *PlayerRepository) GetByName(ctx context.Context, name string) (Player, error) {
	var p Player
	err := r.db.QueryRow(ctx,
		`SELECT id, name, password_hash, created_at, last_login_at
		 FROM players WHERE name = $1`,
		name,
	).Scan(&p.ID, &p.Name, &p.PasswordHash, &p.CreatedAt, &p.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Player{}, ErrPlayerNotFound
		}
		return Player{}, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
