package discover

import (
	"os"
	"path/filepath"
	"testing"
)

var railsDirs = []string{"app/controllers", "app/helpers", "app/views"}

func TestDiscoverRailsFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app/controllers/users_controller.rb", "class UsersController < ApplicationController; end")
	writeFile(t, dir, "app/controllers/admin/base_controller.rb", "module Admin; end")
	writeFile(t, dir, "app/controllers/concerns/auth.rb", "module Auth; end")
	writeFile(t, dir, "app/helpers/format_helper.rb", "module FormatHelper; end")
	writeFile(t, dir, "app/views/users/show.json.jbuilder", "json.id 1")
	// Outside the source dirs
	writeFile(t, dir, "app/models/user.rb", "class User < ApplicationRecord; end")
	// Not Ruby
	writeFile(t, dir, "app/views/users/index.html.erb", "<p></p>")
	// Hidden file should be ignored
	writeFile(t, dir, "app/controllers/.hidden.rb", "secret")

	entries, err := Files(dir, railsDirs, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	want := []FileEntry{
		{Path: filepath.Join("app", "controllers", "admin", "base_controller.rb"), Language: "ruby", Dir: "app/controllers"},
		{Path: filepath.Join("app", "controllers", "concerns", "auth.rb"), Language: "ruby", Dir: "app/controllers"},
		{Path: filepath.Join("app", "controllers", "users_controller.rb"), Language: "ruby", Dir: "app/controllers"},
		{Path: filepath.Join("app", "helpers", "format_helper.rb"), Language: "ruby", Dir: "app/helpers"},
		{Path: filepath.Join("app", "views", "users", "show.json.jbuilder"), Language: "jbuilder", Dir: "app/views"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(entries), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestDiscoverDirOrderIsKept(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app/controllers/a.rb", "")
	writeFile(t, dir, "app/helpers/a.rb", "")

	entries, err := Files(dir, []string{"app/helpers", "app/controllers"}, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Dir != "app/helpers" || entries[1].Dir != "app/controllers" {
		t.Errorf("dir order not kept: %+v", entries)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app/controllers/a.rb", "")

	entries, err := Files(dir, []string{"app/missing", "app/controllers"}, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app/controllers/main.rb", "")
	writeFile(t, dir, "app/controllers/node_modules/pkg.rb", "")
	writeFile(t, dir, "app/controllers/tmp/cached.rb", "")
	writeFile(t, dir, "app/controllers/.hidden/secret.rb", "")
	writeFile(t, dir, "app/controllers/spec/users_spec.rb", "")
	writeFile(t, dir, "app/controllers/users_controller_test.rb", "")

	entries, err := Files(dir, railsDirs, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %v", len(entries), entries)
	}
	if entries[0].Path != filepath.Join("app", "controllers", "main.rb") {
		t.Errorf("expected main.rb, got %q", entries[0].Path)
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app/controllers/a.rb", "")
	writeFile(t, dir, "app/views/a/show.json.jbuilder", "")

	entries, err := Files(dir, railsDirs, []string{"ruby"})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Language != "ruby" {
		t.Fatalf("expected 1 ruby entry, got %v", entries)
	}

	entries, err = Files(dir, railsDirs, []string{"jbuilder"})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Language != "jbuilder" {
		t.Fatalf("expected 1 jbuilder entry, got %v", entries)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "app/controllers/generated/\n")
	writeFile(t, dir, "app/controllers/kept.rb", "")
	writeFile(t, dir, "app/controllers/generated/skip.rb", "")

	entries, err := Files(dir, railsDirs, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %v", len(entries), entries)
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app/controllers/real.rb", "")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "app/controllers/real.rb"), filepath.Join(dir, "app/controllers/link.rb"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, railsDirs, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		{"spec/controllers/users_controller_spec.rb", true},
		{"test/controllers/users_controller_test.rb", true},
		{"app/controllers/users_spec.rb", true},
		{"app/controllers/users_controller.rb", false},
		{"app/helpers/testing_helper.rb", false},
		{"app/views/tests/show.json.jbuilder", true},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got := IsTestFile(tc.path)
			if got != tc.want {
				t.Errorf("IsTestFile(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"users_controller.rb", "ruby"},
		{"show.json.jbuilder", "jbuilder"},
		{"index.html.erb", ""},
		{"Gemfile", ""},
	}
	for _, tt := range tests {
		if got := ForPath(tt.name); got != tt.want {
			t.Errorf("ForPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
