package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/inmobiliaria/gestion-chat/internal/model"
)

var (
	credentialsBucket = []byte("credentials")
	tokenKeyName      = []byte("auth_token")
	userKeyName       = []byte("user")
)

// Store persists the terminal client's token and user in a bbolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenStore opens or creates the credential file at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init credential store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the result of a successful login.
func (s *Store) Save(login *model.LoginResponse) error {
	user, err := json.Marshal(login.User)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if err := b.Put(tokenKeyName, []byte(login.Token)); err != nil {
			return err
		}
		return b.Put(userKeyName, user)
	})
}

// Token implements CredentialProvider. An expired token is treated as
// missing.
func (s *Store) Token(_ context.Context) (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(credentialsBucket).Get(tokenKeyName); v != nil {
			token = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" || Expired(token, s.now()) {
		return "", ErrNoCredential
	}
	return token, nil
}

// User returns the stored user, or nil when nobody is logged in.
func (s *Store) User() (*model.User, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(credentialsBucket).Get(userKeyName); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &u, nil
}

// Invalidate implements CredentialProvider by removing token and user.
func (s *Store) Invalidate(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if err := b.Delete(tokenKeyName); err != nil {
			return err
		}
		return b.Delete(userKeyName)
	})
}
