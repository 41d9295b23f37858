// Package profiles stores named presence descriptions in profiles.toml.
package profiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"tools.zach/dev/richcord/internal/atomicfile"
	"tools.zach/dev/richcord/internal/migrate"
	"tools.zach/dev/richcord/internal/presence"
)

var (
	ErrNotFound  = errors.New("profile not found")
	ErrEmptyName = errors.New("profile name is required")
)

// Profile is a saved presence.
type Profile struct {
	ID        string               `toml:"id" json:"id"`
	Name      string               `toml:"name" json:"name"`
	Presence  presence.Description `toml:"presence" json:"presence"`
	CreatedAt time.Time            `toml:"created_at" json:"createdAt"`
	UpdatedAt time.Time            `toml:"updated_at" json:"updatedAt"`
}

type document struct {
	Version  int       `toml:"version"`
	Profiles []Profile `toml:"profiles"`
}

// Store reads and writes one profiles file. Every call re-reads the file,
// so edits made by hand or by another process are picked up.
type Store struct {
	path  string
	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewStore returns a store for the file at path. The file need not exist.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		newID: func() string { return uuid.NewString() },
	}
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(doc.Profiles, func(a, b Profile) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return doc.Profiles, nil
}

// Get finds a profile by ID or by case-insensitive name.
func (s *Store) Get(ref string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Profile{}, err
	}
	i := find(doc.Profiles, ref)
	if i < 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return doc.Profiles[i], nil
}

// Save stores desc under name, replacing the presence of an existing
// profile with the same name (case-insensitive). The description is
// validated first.
func (s *Store) Save(name string, desc presence.Description) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, ErrEmptyName
	}
	if err := presence.Validate(desc); err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Profile{}, err
	}

	now := s.now()
	var p Profile
	if i := slices.IndexFunc(doc.Profiles, func(p Profile) bool { return strings.EqualFold(p.Name, name) }); i >= 0 {
		doc.Profiles[i].Presence = desc
		doc.Profiles[i].UpdatedAt = now
		p = doc.Profiles[i]
	} else {
		p = Profile{ID: s.newID(), Name: name, Presence: desc, CreatedAt: now, UpdatedAt: now}
		doc.Profiles = append(doc.Profiles, p)
	}

	if err := s.write(doc); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Delete removes the profile matching ref.
func (s *Store) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	i := find(doc.Profiles, ref)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	doc.Profiles = slices.Delete(doc.Profiles, i, i+1)
	return s.write(doc)
}

// find prefers an exact ID match over a name match.
func find(list []Profile, ref string) int {
	if i := slices.IndexFunc(list, func(p Profile) bool { return p.ID == ref }); i >= 0 {
		return i
	}
	return slices.IndexFunc(list, func(p Profile) bool { return strings.EqualFold(p.Name, strings.TrimSpace(ref)) })
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{Version: migrate.Profiles.CurrentVersion}, nil
		}
		return document{}, fmt.Errorf("reading profiles: %w", err)
	}

	var peek struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(data), &peek); err != nil {
		return document{}, fmt.Errorf("parsing profiles: %w", err)
	}
	if peek.Version == 0 {
		peek.Version = 1
	}

	data, migrated, err := migrate.Profiles.Apply(data, peek.Version, s.path+".bak")
	if err != nil {
		return document{}, fmt.Errorf("migrating profiles: %w", err)
	}

	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return document{}, fmt.Errorf("parsing profiles: %w", err)
	}
	doc.Version = migrate.Profiles.CurrentVersion

	if migrated {
		if err := s.write(doc); err != nil {
			return document{}, err
		}
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	err := atomicfile.WriteFunc(s.path, 0o600, func(w io.Writer) error {
		return toml.NewEncoder(w).Encode(doc)
	})
	if err != nil {
		return fmt.Errorf("writing profiles: %w", err)
	}
	return nil
}
