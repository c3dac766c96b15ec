package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Connection represents a user's exchange connection. Key material is stored
// encrypted; plaintext never touches the database.
type Connection struct {
	ID                 string
	UserID             string
	ExchangeType       string
	Name               string
	APIKeyEncrypted    string
	APISecretEncrypted string
	Testnet            bool
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Order is a persisted order record including rejected ones.
type Order struct {
	ID        string
	UserID    string
	Mode      string
	Symbol    string
	Side      string
	Type      string
	Price     float64
	Qty       float64
	FilledQty float64
	AvgPrice  float64
	Status    string
	CreatedAt time.Time
}

// Trade is a persisted fill.
type Trade struct {
	ID        string
	OrderID   string
	UserID    string
	Symbol    string
	Side      string
	Price     float64
	Qty       float64
	Fee       float64
	CreatedAt time.Time
}

// AuditRecord is one append-only audit row.
type AuditRecord struct {
	ID           string
	UserID       string
	Action       string
	PreviousMode string
	NewMode      string
	Details      string
	CreatedAt    time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := scanUser(row, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

// GetUserByID returns a user by id or nil if not found.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	var u User
	if err := scanUser(row, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, nil
	}
	return &u, nil
}

// CreateConnection inserts a new exchange connection.
func (d *Database) CreateConnection(ctx context.Context, c Connection) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO connections (
			id, user_id, exchange_type, name, api_key_encrypted, api_secret_encrypted,
			testnet, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`,
		c.ID, c.UserID, c.ExchangeType, c.Name, c.APIKeyEncrypted, c.APISecretEncrypted,
		c.Testnet, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// ListConnectionsByUser returns all connections for a user.
func (d *Database) ListConnectionsByUser(ctx context.Context, userID string) ([]Connection, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, exchange_type, name, api_key_encrypted, api_secret_encrypted,
		       testnet, is_active, created_at, updated_at
		FROM connections WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.UserID, &c.ExchangeType, &c.Name, &c.APIKeyEncrypted,
			&c.APISecretEncrypted, &c.Testnet, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeactivateConnection marks a connection as inactive for a user.
func (d *Database) DeactivateConnection(ctx context.Context, id, userID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE connections
		SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, id, userID)
	return err
}

func scanUser(row *sql.Row, u *User) error {
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		*u = User{}
		return nil
	}
	return err
}
