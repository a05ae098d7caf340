// Package discover finds analyzable source files in a Rails application.
package discover

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/railscope/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to repo root
	Language string
	Dir      string // Source directory the file was found under
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	".bundle":      {},
	"tmp":          {},
	"log":          {},
	"vendor":       {},
	"coverage":     {},
	"public":       {},
}

// Files discovers source files under each of dirs (relative to root), in
// the order given. Within a directory, files are sorted by path. Missing
// directories are skipped. If languages is non-empty, only files matching
// one of the listed languages are returned. Test files are never returned.
func Files(root string, dirs, languages []string) ([]FileEntry, error) {
	langSet := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		langSet[l] = struct{}{}
	}
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	seen := make(map[string]struct{})
	var results []FileEntry

	for _, dir := range dirs {
		start := filepath.Join(root, dir)
		if info, err := os.Stat(start); err != nil || !info.IsDir() {
			continue
		}

		var found []FileEntry
		err := filepath.WalkDir(start, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors
			}

			name := d.Name()

			if d.IsDir() {
				if path == start {
					return nil
				}
				if SkipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}

			if strings.HasPrefix(name, ".") {
				return nil
			}

			// Skip symlinks
			if d.Type()&os.ModeSymlink != 0 {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}

			if gitFiles != nil {
				if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
					return nil
				}
			} else if gi != nil && gi.MatchesPath(rel) {
				return nil
			}

			if IsTestFile(rel) {
				return nil
			}

			langName := ForPath(name)
			if langName == "" {
				return nil
			}

			if len(langSet) > 0 {
				if _, ok := langSet[langName]; !ok {
					return nil
				}
			}

			if _, dup := seen[rel]; dup {
				return nil
			}
			seen[rel] = struct{}{}
			found = append(found, FileEntry{Path: rel, Language: langName, Dir: dir})
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		sort.Slice(found, func(i, j int) bool {
			return found[i].Path < found[j].Path
		})
		results = append(results, found...)
	}

	return results, nil
}

// SkipDir reports whether a directory named name is never scanned.
func SkipDir(name string) bool {
	_, skip := skipDirs[name]
	return skip || strings.HasPrefix(name, ".")
}

// ForPath returns the language of a file name. Multi-part extensions such
// as .json.jbuilder resolve by their last component.
func ForPath(name string) string {
	return lang.ForExtension(filepath.Ext(name))
}

// IsTestFile reports whether rel looks like a Ruby test or spec file.
func IsTestFile(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(filepath.Dir(rel), "/") {
		switch part {
		case "spec", "test", "tests":
			return true
		}
	}
	base := filepath.Base(rel)
	return strings.HasSuffix(base, "_spec.rb") || strings.HasSuffix(base, "_test.rb")
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
