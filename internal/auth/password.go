package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"fms/internal/database"
	"fms/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("user is deactivated")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CreateUser inserts a user with a hashed password.
func CreateUser(ctx context.Context, q database.Querier, username, password, displayName, role string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := database.RunStatement(ctx, q,
		"INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		username, hash, displayName, role)
	if err != nil {
		return 0, err
	}
	return res.ID, nil
}

// Authenticate checks username and password and stamps last_login.
func Authenticate(ctx context.Context, db *sql.DB, username, password string) (models.User, error) {
	var u models.User
	var hash string
	var active int
	var lastLogin sql.NullString
	err := db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, COALESCE(display_name,''), role, active, last_login, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &hash, &u.DisplayName, &u.Role, &active, &lastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrInvalidCredentials
	}
	if err != nil {
		return u, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return u, ErrInvalidCredentials
	}
	if active == 0 {
		return u, ErrInactiveUser
	}
	u.Active = true
	now := database.Now()
	if _, err := db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", now, u.ID); err != nil {
		return u, err
	}
	u.LastLogin = &now
	return u, nil
}
