package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"testsmith/internal/logging"
)

// Token budgets for project context sections.
const (
	architectureTokenBudget = 1500
	metadataTokenBudget     = 800
)

// ProjectContext is background material about the target project that is
// folded into the system prompt.
type ProjectContext struct {
	Architecture string // excerpt of the architecture doc
	Metadata     string // excerpt of the project metadata file
	Structure    string // summary of the source tree layout
}

// GatherProjectContext reads optional context files and summarizes the
// source tree. Everything is best-effort: missing files simply leave
// their section empty.
func GatherProjectContext(projectRoot, sourceRoot, architectureFile, metadataFile string) ProjectContext {
	var pc ProjectContext

	if architectureFile != "" {
		if data, err := os.ReadFile(filepath.Join(projectRoot, architectureFile)); err == nil {
			pc.Architecture = TruncateToBudget(string(data), architectureTokenBudget)
		}
	}
	if metadataFile != "" {
		if data, err := os.ReadFile(filepath.Join(projectRoot, metadataFile)); err == nil {
			pc.Metadata = TruncateToBudget(string(data), metadataTokenBudget)
		}
	}

	pc.Structure = summarizeStructure(filepath.Join(projectRoot, sourceRoot))

	logging.PromptDebug("project context: arch=%d chars meta=%d chars structure=%d chars",
		len(pc.Architecture), len(pc.Metadata), len(pc.Structure))
	return pc
}

// summarizeStructure counts Java files per package directory and renders
// a compact layout listing.
func summarizeStructure(sourceRoot string) string {
	counts := make(map[string]int)

	err := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".java") {
			return nil
		}
		rel, relErr := filepath.Rel(sourceRoot, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		counts[filepath.ToSlash(rel)]++
		return nil
	})
	if err != nil || len(counts) == 0 {
		return ""
	}

	dirs := make([]string, 0, len(counts))
	for dir := range counts {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var b strings.Builder
	b.WriteString("Source layout (package directory: file count):\n")
	for _, dir := range dirs {
		fmt.Fprintf(&b, "  %s: %d\n", dir, counts[dir])
	}
	return b.String()
}
