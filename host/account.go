package host

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Account is the administrator account configured after an install.
type Account struct {
	Name     string
	Mail     string
	Password string
}

// SetAdminAccount turns the administrator placeholder into a real, active
// account. The password is stored as a bcrypt hash.
func (h *Host) SetAdminAccount(ctx context.Context, account Account) error {
	if account.Name == "" || account.Password == "" {
		return fmt.Errorf("%w: name and password are required", ErrInvalidAccount)
	}
	db, err := h.db()
	if err != nil {
		return err
	}
	table, err := db.TableName(UsersTable.Name)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	// #nosec G201 - table name is validated above
	query := fmt.Sprintf("UPDATE %s SET name = ?, mail = ?, pass = ?, status = 1, created = ? WHERE uid = ?", table)
	if _, err := db.Exec(ctx, query, account.Name, account.Mail, string(hash), time.Now().Unix(), AdminUID); err != nil {
		return fmt.Errorf("failed to configure administrator: %w", err)
	}
	h.logger.Info("Administrator account configured", "name", account.Name)
	return nil
}

// CheckPassword reports whether password matches the stored hash of the
// account called name.
func (h *Host) CheckPassword(ctx context.Context, name, password string) (bool, error) {
	db, err := h.db()
	if err != nil {
		return false, err
	}
	table, err := db.TableName(UsersTable.Name)
	if err != nil {
		return false, err
	}
	var hash string
	// #nosec G201 - table name is validated above
	query := db.Dialect().Rebind(fmt.Sprintf("SELECT pass FROM %s WHERE name = ?", table))
	if err := db.DB().QueryRowContext(ctx, query, name).Scan(&hash); err != nil {
		return false, fmt.Errorf("failed to read account %s: %w", name, err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// SetPassword replaces the password of the account identified by who, which
// is a uid, a user name or a mail address. The anonymous user (uid 0) has
// no password.
func (h *Host) SetPassword(ctx context.Context, who, password string) (int, string, error) {
	if who == "" || password == "" {
		return 0, "", fmt.Errorf("%w: user and password are required", ErrInvalidAccount)
	}
	db, err := h.db()
	if err != nil {
		return 0, "", err
	}
	table, err := db.TableName(UsersTable.Name)
	if err != nil {
		return 0, "", err
	}
	var (
		uid  int
		name string
		row  *sql.Row
	)
	if id, convErr := strconv.Atoi(who); convErr == nil {
		// #nosec G201 - table name is validated above
		query := db.Dialect().Rebind(fmt.Sprintf("SELECT uid, name FROM %s WHERE uid = ? AND uid > 0", table))
		row = db.DB().QueryRowContext(ctx, query, id)
	} else {
		// #nosec G201 - table name is validated above
		query := db.Dialect().Rebind(fmt.Sprintf("SELECT uid, name FROM %s WHERE (name = ? OR mail = ?) AND uid > 0", table))
		row = db.DB().QueryRowContext(ctx, query, who, who)
	}
	if err := row.Scan(&uid, &name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", fmt.Errorf("%w: %s", ErrUserNotFound, who)
		}
		return 0, "", fmt.Errorf("failed to look up user %s: %w", who, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", fmt.Errorf("failed to hash password: %w", err)
	}
	// #nosec G201 - table name is validated above
	query := fmt.Sprintf("UPDATE %s SET pass = ? WHERE uid = ?", table)
	if _, err := db.Exec(ctx, query, string(hash), uid); err != nil {
		return 0, "", fmt.Errorf("failed to set password for %s: %w", name, err)
	}
	h.logger.Info("Password changed", "uid", uid, "name", name)
	return uid, name, nil
}
