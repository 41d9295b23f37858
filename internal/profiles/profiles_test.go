package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/richcord/internal/migrate"
	"tools.zach/dev/richcord/internal/presence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "profiles.toml"))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func TestStore_EmptyWhenMissing(t *testing.T) {
	s := newTestStore(t)

	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = s.Get("anything")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	desc := presence.Description{
		Details:         "Reviewing PRs",
		State:           "GitHub",
		LargeImageKey:   "github",
		Button1:         &presence.Button{Label: "Profile", URL: "https://github.com/me"},
		ShowElapsedTime: true,
		ActivityType:    "watching",
	}

	saved, err := s.Save("Code Review", desc)
	require.NoError(t, err)
	require.Equal(t, "id-1", saved.ID)

	for _, ref := range []string{"id-1", "code review", "  CODE REVIEW "} {
		got, err := s.Get(ref)
		require.NoError(t, err, ref)
		if diff := cmp.Diff(saved, got); diff != "" {
			t.Errorf("Get(%q) mismatch (-want +got):\n%s", ref, diff)
		}
	}
}

func TestStore_SaveUpsertsByName(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Save("Gaming", presence.Description{Details: "Lobby"})
	require.NoError(t, err)
	second, err := s.Save("gaming", presence.Description{Details: "In match"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Gaming", second.Name, "the original name is kept")
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "In match", list[0].Presence.Details)
}

func TestStore_ListSortedByName(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"writing", "Art", "music"} {
		_, err := s.Save(name, presence.Description{})
		require.NoError(t, err)
	}

	list, err := s.List()
	require.NoError(t, err)
	var names []string
	for _, p := range list {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"Art", "music", "writing"}, names)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Save("a", presence.Description{})
	require.NoError(t, err)
	_, err = s.Save("b", presence.Description{})
	require.NoError(t, err)

	require.NoError(t, s.Delete(a.ID))
	require.NoError(t, s.Delete("B"))
	require.ErrorIs(t, s.Delete("a"), ErrNotFound)

	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestStore_SaveRejects(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save("  ", presence.Description{})
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = s.Save("long", presence.Description{Details: strings.Repeat("x", 200)})
	var verr *presence.ValidationError
	require.True(t, errors.As(err, &verr))

	_, statErr := os.Stat(s.path)
	require.True(t, os.IsNotExist(statErr), "nothing is written for rejected saves")
}

func TestStore_FileFormat(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save("Focus", presence.Description{Details: "Deep work"})
	require.NoError(t, err)

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "version = 1")
	require.Contains(t, text, "[[profiles]]")
	require.Contains(t, text, `name = "Focus"`)
	require.Contains(t, text, `details = "Deep work"`)
	require.NotContains(t, text, "button1", "unset buttons are omitted")
}

func TestStore_MigratesOldFile(t *testing.T) {
	orig := *migrate.Profiles
	t.Cleanup(func() { *migrate.Profiles = orig })
	migrate.Profiles.CurrentVersion = 2
	migrate.Profiles.Migrations = []migrate.Migration{{
		Version:     2,
		Description: "rename [[profile]] to [[profiles]]",
		Upgrade: func(data []byte) ([]byte, error) {
			return []byte(strings.ReplaceAll(string(data), "[[profile]]", "[[profiles]]")), nil
		},
	}}

	s := newTestStore(t)
	old := "version = 1\n\n[[profile]]\nid = \"x\"\nname = \"Old\"\n"
	require.NoError(t, os.WriteFile(s.path, []byte(old), 0o600))

	p, err := s.Get("old")
	require.NoError(t, err)
	require.Equal(t, "x", p.ID)

	backup, err := os.ReadFile(s.path + ".bak")
	require.NoError(t, err)
	require.Equal(t, old, string(backup))

	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	require.Contains(t, string(data), "version = 2")
}

func TestStore_CorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.path, []byte("[[profiles]\nname = "), 0o600))

	_, err := s.List()
	require.ErrorContains(t, err, "parsing profiles")
}
