// Package fixture manages the account database the server under test
// authenticates against: users with their passwords and per-user encryption
// key pairs whose private half is locked with the user's key password.
package fixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL,
	crypted_password TEXT NOT NULL,
	persistence_token TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS keys (
	id INTEGER PRIMARY KEY,
	enabled INTEGER NOT NULL,
	public_key TEXT NOT NULL,
	private_key TEXT NOT NULL,
	private_key_salt TEXT NOT NULL,
	private_key_iterations INTEGER NOT NULL
);
`

// User is one row of the users table.
type User struct {
	ID       int
	Name     string
	Password string
}

// Key is one row of the keys table. PEM fields have their newlines replaced
// by "_".
type Key struct {
	ID                   int
	Enabled              bool
	PublicKey            string
	PrivateKey           string
	PrivateKeySalt       string
	PrivateKeyIterations int
}

// Options configures a Store.
type Options struct {
	// KeyPassword unlocks the generated private key. Default "testPassword".
	KeyPassword string
	// KeyCost is the bcrypt cost used to derive the key passphrase. Default 12.
	KeyCost int
	// KeyBits is the RSA modulus size. Default 2048.
	KeyBits int

	Logger *slog.Logger // nil → slog.Default()
}

// Store is an open fixture database.
type Store struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger

	keyOnce  sync.Once
	material keyMaterial
	keyErr   error
}

// Open opens (creating if needed) the sqlite database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.KeyPassword == "" {
		opts.KeyPassword = "testPassword"
	}
	if opts.KeyCost == 0 {
		opts.KeyCost = 12
	}
	if opts.KeyBits == 0 {
		opts.KeyBits = 2048
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open fixture database: %w", err)
	}
	s := &Store{db: db, opts: opts, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the users and keys tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create fixture schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertUser registers a user with a password.
func (s *Store) InsertUser(ctx context.Context, id int, name, password string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, crypted_password, persistence_token) VALUES (?, ?, ?, 'dummy')`,
		id, name, password)
	if err != nil {
		return fmt.Errorf("insert user %d: %w", id, err)
	}
	s.logger.Debug("fixture user inserted", "id", id, "username", name)
	return nil
}

// InsertKey stores the store's key pair under id. The key pair is generated
// on first use and shared by every key row of this Store.
func (s *Store) InsertKey(ctx context.Context, id int, enabled bool) error {
	m, err := s.keyMaterial()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO keys (id, enabled, public_key, private_key, private_key_salt, private_key_iterations) VALUES (?, ?, ?, ?, ?, ?)`,
		id, enabled, m.publicKey, m.privateKey, m.salt, s.opts.KeyCost)
	if err != nil {
		return fmt.Errorf("insert key %d: %w", id, err)
	}
	s.logger.Debug("fixture key inserted", "id", id, "enabled", enabled)
	return nil
}

// UpdateKey enables or disables key id.
func (s *Store) UpdateKey(ctx context.Context, id int, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE keys SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("update key %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update key %d: %w", id, ErrNotFound)
	}
	return nil
}

// FetchUsers returns all users ordered by id.
func (s *Store) FetchUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, crypted_password FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Password); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// FetchKeys returns all keys ordered by id.
func (s *Store) FetchKeys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, enabled, public_key, private_key, private_key_salt, private_key_iterations FROM keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetch keys: %w", err)
	}
	defer rows.Close()

	keys := []Key{}
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.ID, &k.Enabled, &k.PublicKey, &k.PrivateKey, &k.PrivateKeySalt, &k.PrivateKeyIterations); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ClearUsers deletes every user.
func (s *Store) ClearUsers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

// ClearKeys deletes every key.
func (s *Store) ClearKeys(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM keys`); err != nil {
		return fmt.Errorf("clear keys: %w", err)
	}
	return nil
}

// ErrNotFound is returned when an update matches no row.
var ErrNotFound = errors.New("fixture row not found")

func (s *Store) keyMaterial() (keyMaterial, error) {
	s.keyOnce.Do(func() {
		s.material, s.keyErr = generateKeyMaterial(s.opts.KeyBits, s.opts.KeyPassword, s.opts.KeyCost)
	})
	return s.material, s.keyErr
}
