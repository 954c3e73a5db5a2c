// Package tokenfile persists the plugin's authentication token between runs,
// optionally sealed with a password, and reports changes made by other
// processes.
package tokenfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/secrets"
	"github.com/codefionn/vtsclient/internal/securemem"
	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
)

// ErrLocked means the file is sealed and no password was given
var ErrLocked = errors.New("token file is sealed and no password was given")

// Store reads and writes one token file
type Store struct {
	path string
	// Password seals the token when set
	password *securemem.Secret
	// label binds a sealed token to the plugin it was issued to
	label  string
	params secrets.Params
	log    *logger.Logger
}

// Option configures a Store
type Option func(*Store)

// WithPassword seals tokens written by the store and opens sealed ones
func WithPassword(password *securemem.Secret, plugin string) Option {
	return func(s *Store) {
		s.password = password
		s.label = "vtsclient-token:" + plugin
	}
}

// WithParams overrides the key derivation cost
func WithParams(params secrets.Params) Option {
	return func(s *Store) {
		s.params = params
	}
}

// New creates a store for path. Nothing is read until Load.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		params: secrets.DefaultParams,
		log:    logger.Global().WithPrefix("tokenfile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored token, or "" if the file does not exist.
func (s *Store) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return s.decode(strings.TrimSpace(string(raw)))
}

// Save replaces the stored token atomically
func (s *Store) Save(token string) error {
	text := token
	if s.password != nil && !s.password.IsEmpty() {
		sealed, err := secrets.SealString(token, s.password, s.label, s.params)
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
		text = sealed
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewBufferString(text+"\n")); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	s.log.Debug("Saved token to %s", s.path)
	return nil
}

func (s *Store) decode(text string) (string, error) {
	if !secrets.IsSealed(text) {
		return text, nil
	}
	if s.password == nil || s.password.IsEmpty() {
		return "", ErrLocked
	}
	token, err := secrets.OpenString(text, s.password, s.label)
	if err != nil {
		return "", fmt.Errorf("open token file: %w", err)
	}
	return token, nil
}

// Watch calls fn with the token whenever the file changes, until ctx ends.
// The directory is watched so atomic replacements are seen.
func (s *Store) Watch(ctx context.Context, fn func(token string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		name := filepath.Clean(s.path)
		last := ""
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				token, err := s.Load()
				if err != nil {
					s.log.Warn("Ignoring unreadable token file: %v", err)
					continue
				}
				if token == "" || token == last {
					continue
				}
				last = token
				fn(token)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Error("Token file watcher error: %v", err)
			}
		}
	}()
	return nil
}
