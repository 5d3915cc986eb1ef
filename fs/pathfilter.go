package fs

import (
	"path/filepath"
	"sort"
	"strings"
)

// Category represents a category of files/directories to exclude
type Category int

const (
	// CategoryDependencies - installed packages (node_modules)
	CategoryDependencies Category = 1 << iota

	// CategoryTemplate - scaffolding leftovers copied in by "create" (.template)
	CategoryTemplate

	// CategoryIDE - editor workspace settings (.vscode)
	CategoryIDE

	// CategoryVCS - version control directories (.git, .svn, .hg)
	CategoryVCS

	// CategoryBuild - compiled output of the project (dist)
	CategoryBuild

	// CategoryEditorTemp - swap and backup files editors write next to sources
	CategoryEditorTemp
)

// Presets
const (
	// ExcludeNone - no exclusions
	ExcludeNone Category = 0

	// ExcludeForSnapshot is the IgnoreSet: exactly node_modules, .template and .vscode.
	ExcludeForSnapshot = CategoryDependencies | CategoryTemplate | CategoryIDE

	// ExcludeForWatch - what the dev-process watcher never reacts to
	ExcludeForWatch = ExcludeForSnapshot | CategoryVCS | CategoryBuild | CategoryEditorTemp
)

// PathFilter handles file/directory exclusion checks
type PathFilter struct {
	exclusions Category
}

// NewPathFilter creates a new PathFilter with the specified exclusion categories
func NewPathFilter(exclusions Category) *PathFilter {
	return &PathFilter{exclusions: exclusions}
}

// SnapshotFilter returns the filter used by the tree snapshotter
func SnapshotFilter() *PathFilter {
	return NewPathFilter(ExcludeForSnapshot)
}

// IgnoreSet returns the directory names the snapshotter never descends into, sorted.
func IgnoreSet() []string {
	var names []string
	for name := range dependencyNames {
		names = append(names, name)
	}
	for name := range templateNames {
		names = append(names, name)
	}
	for name := range ideNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsExcluded checks if a path should be excluded based on any path component
func (f *PathFilter) IsExcluded(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." {
			continue
		}
		if f.IsExcludedName(part) {
			return true
		}
	}
	return false
}

// IsExcludedName checks a single directory entry name.
// Names are matched exactly: node_modules and NODE_MODULES are different entries on
// case-sensitive filesystems and only the former is a dependency directory.
func (f *PathFilter) IsExcludedName(name string) bool {
	if f.exclusions&CategoryDependencies != 0 && dependencyNames[name] {
		return true
	}
	if f.exclusions&CategoryTemplate != 0 && templateNames[name] {
		return true
	}
	if f.exclusions&CategoryIDE != 0 && ideNames[name] {
		return true
	}
	if f.exclusions&CategoryVCS != 0 && vcsNames[name] {
		return true
	}
	if f.exclusions&CategoryBuild != 0 && buildNames[name] {
		return true
	}
	if f.exclusions&CategoryEditorTemp != 0 {
		if strings.HasSuffix(name, "~") || hasAnySuffix(name, editorTempSuffixes) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// =============================================================================
// Exclusion names organized by category
// =============================================================================

var dependencyNames = map[string]bool{
	"node_modules": true,
}

var templateNames = map[string]bool{
	".template": true,
}

var ideNames = map[string]bool{
	".vscode": true,
}

var vcsNames = map[string]bool{
	".git": true,
	".svn": true,
	".hg":  true,
}

var buildNames = map[string]bool{
	"dist": true,
}

var editorTempSuffixes = []string{
	".swp",
	".swo",
	".swx",
	".tmp",
}
