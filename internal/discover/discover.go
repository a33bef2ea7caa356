// Package discover finds RPG source members on disk.
package discover

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/mayflower/rpg-explainer/internal/lang"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path    string // Relative to the walk root, or as given on the command line
	Dialect string
	Size    int64
}

// Options narrows what Files and Paths return.
type Options struct {
	// Include and Exclude are doublestar patterns matched against
	// slash-separated paths relative to the walk root. An empty Include
	// accepts every file with a known extension.
	Include []string
	Exclude []string

	// MaxFileSize skips larger files when positive.
	MaxFileSize int64

	// OnSkip is called for files dropped by the size limit.
	OnSkip func(path, reason string)
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"build":        {},
	"dist":         {},
	"vendor":       {},
}

// Files discovers RPG sources under root, sorted by path.
func Files(root string, opts Options) ([]FileEntry, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			rel, err := filepath.Rel(root, path)
			if err == nil && opts.excluded(filepath.ToSlash(rel)+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
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

		dialect := lang.ForExtension(filepath.Ext(name))
		if dialect == "" {
			return nil
		}
		slash := filepath.ToSlash(rel)
		if !opts.included(slash) || opts.excluded(slash) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !opts.fits(rel, info.Size()) {
			return nil
		}

		results = append(results, FileEntry{Path: rel, Dialect: dialect, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// Paths expands command-line arguments. Directories are walked with Files
// and their entries joined back onto the directory; files are taken as
// given whatever their extension. Duplicates keep their first position.
func Paths(args []string, opts Options) ([]FileEntry, error) {
	seen := make(map[string]struct{})
	var results []FileEntry
	add := func(e FileEntry) {
		key := filepath.Clean(e.Path)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		results = append(results, e)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			if !opts.fits(arg, info.Size()) {
				continue
			}
			dialect := lang.ForExtension(filepath.Ext(arg))
			if dialect == "" {
				dialect = "rpgle"
			}
			add(FileEntry{Path: arg, Dialect: dialect, Size: info.Size()})
			continue
		}
		entries, err := Files(arg, opts)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
		for _, e := range entries {
			e.Path = filepath.Join(arg, e.Path)
			add(e)
		}
	}
	return results, nil
}

func (o Options) included(path string) bool {
	if len(o.Include) == 0 {
		return true
	}
	return matchAny(o.Include, path)
}

func (o Options) excluded(path string) bool {
	return matchAny(o.Exclude, path)
}

func (o Options) fits(path string, size int64) bool {
	if o.MaxFileSize <= 0 || size <= o.MaxFileSize {
		return true
	}
	if o.OnSkip != nil {
		o.OnSkip(path, fmt.Sprintf("%d bytes exceeds limit of %d", size, o.MaxFileSize))
	}
	return false
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
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
	for line := range strings.SplitSeq(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
