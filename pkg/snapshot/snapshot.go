package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vango-dev/reactor/pkg/dom"
)

// ErrNotFound is returned when a snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot: not found")

// ErrTooLarge is returned when a snapshot exceeds the store's size limit.
var ErrTooLarge = errors.New("snapshot: too large")

// ErrInvalidKey is returned for names and keys that could escape the store.
var ErrInvalidKey = errors.New("snapshot: invalid key")

// Extension is appended to every snapshot key.
const Extension = ".html"

// ContentType is the media type snapshots are stored with.
const ContentType = "text/html; charset=utf-8"

// Store is the interface for snapshot storage backends.
type Store interface {
	// Put stores markup under a key derived from name and returns the key.
	Put(ctx context.Context, name string, markup []byte) (key string, err error)

	// Get returns the markup stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every stored snapshot, oldest first.
	List(ctx context.Context) ([]Info, error)

	// Cleanup removes snapshots older than maxAge and reports how many
	// were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// Info describes a stored snapshot.
type Info struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Capture renders n and its subtree to markup.
func Capture(n dom.Node) []byte {
	return []byte(dom.Markup(n))
}

// Save captures root and stores it under name.
func Save(ctx context.Context, store Store, name string, root dom.Node) (string, error) {
	return store.Put(ctx, name, Capture(root))
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// keyTime is sortable and safe in file names and object keys.
const keyTime = "20060102T150405.000000000Z"

// NewKey returns the key a snapshot named name captured at t is stored under.
func NewKey(name string, t time.Time) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: name %q", ErrInvalidKey, name)
	}
	return name + "-" + t.UTC().Format(keyTime) + Extension, nil
}

// ParseKey splits a key into its name and capture time.
func ParseKey(key string) (name string, t time.Time, err error) {
	base, ok := strings.CutSuffix(key, Extension)
	if !ok || len(base) < len(keyTime)+2 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cut := len(base) - len(keyTime)
	if base[cut-1] != '-' {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	name = base[:cut-1]
	if !namePattern.MatchString(name) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	t, err = time.Parse(keyTime, base[cut:])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, t, nil
}

// validKey rejects anything ParseKey would not produce.
func validKey(key string) error {
	_, _, err := ParseKey(key)
	return err
}
