package remote

import (
	"testing"
)

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   Repository
		ok     bool
	}{
		{"https", "https://github.com/user/richcord", Repository{"user", "richcord"}, true},
		{"https with .git", "https://github.com/user/richcord.git\n", Repository{"user", "richcord"}, true},
		{"ssh", "git@github.com:my-org/rich-presence.git", Repository{"my-org", "rich-presence"}, true},
		{"ssh without .git", "git@github.com:my-org/rich-presence", Repository{"my-org", "rich-presence"}, true},
		{"trailing slash", "https://github.com/user/repo/", Repository{"user", "repo"}, true},
		{"dotted repo", "https://github.com/user/repo.go.git", Repository{"user", "repo.go"}, true},
		{"gitlab", "https://gitlab.com/user/repo", Repository{}, false},
		{"empty", "", Repository{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOrigin(tt.origin)
			if ok != tt.ok {
				t.Fatalf("ParseOrigin(%q) ok = %v, want %v", tt.origin, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseOrigin(%q) = %+v, want %+v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestRepository_RawURL(t *testing.T) {
	r := Repository{Owner: "user", Name: "richcord"}
	want := "https://raw.githubusercontent.com/user/richcord/main/.release-manifest.json"
	if got := r.RawURL("/.release-manifest.json"); got != want {
		t.Errorf("RawURL = %q, want %q", got, want)
	}

	if got := (Repository{Owner: "user"}).RawURL("x"); got != "" {
		t.Errorf("RawURL on incomplete repository = %q, want empty", got)
	}
}
