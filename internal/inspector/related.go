package inspector

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"testsmith/internal/logging"
)

// maxRelatedFileChars caps how much of a related file is carried into prompts.
const maxRelatedFileChars = 3000

// RelatedFile is a project file associated with the loaded class,
// discovered by naming convention.
type RelatedFile struct {
	Path    string
	Content string // truncated to maxRelatedFileChars
}

// relatedCategories maps a category name to the filename suffix appended
// to the base domain name.
var relatedCategories = []struct {
	category string
	suffix   string
}{
	{"entity", "Entity"},
	{"dto", ""},
	{"mapper", "Mapper"},
	{"validator", "Validator"},
	{"dao", "Dao"},
	{"service", "Service"},
	{"service_impl", "ServiceImpl"},
}

// BaseName strips architectural suffixes from a class name to get the
// underlying domain name: UserServiceImpl -> User.
func BaseName(className string) string {
	for _, suffix := range []string{"ServiceImpl", "Service", "Controller", "Mapper", "Validator", "Dao", "Repository", "DTO"} {
		if strings.HasSuffix(className, suffix) && len(className) > len(suffix) {
			return strings.TrimSuffix(className, suffix)
		}
	}
	return className
}

// DiscoverRelated finds files related to the loaded class under sourceRoot
// and attaches them to src.Related keyed by category. The loaded file itself
// is skipped. Discovery is best-effort: a missing source root yields no
// related files, not an error.
func DiscoverRelated(src *LoadedSource, sourceRoot string) {
	if src.Related == nil {
		src.Related = make(map[string]RelatedFile)
	}

	base := BaseName(src.ClassName)
	wanted := make(map[string]string) // filename -> category
	for _, rc := range relatedCategories {
		wanted[base+rc.suffix+".java"] = rc.category
	}

	selfName := filepath.Base(src.Path)

	err := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		category, ok := wanted[name]
		if !ok || name == selfName {
			return nil
		}
		if _, exists := src.Related[category]; exists {
			return nil // first match wins
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		text := string(content)
		if len(text) > maxRelatedFileChars {
			text = text[:maxRelatedFileChars] + "\n// ... truncated"
		}
		src.Related[category] = RelatedFile{Path: path, Content: text}
		return nil
	})
	if err != nil {
		logging.InspectorDebug("related file walk failed: %v", err)
	}

	logging.Inspector("discovered %d related files for %s", len(src.Related), src.ClassName)
}

// FindClass locates a Java source file by class name under sourceRoot.
// Exact filename matches win; otherwise case-insensitive and substring
// matches are returned, shortest path first.
func FindClass(sourceRoot, className string) ([]string, error) {
	className = strings.TrimSuffix(className, ".java")
	var exact, fuzzy []string

	err := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".java") {
			return nil
		}
		stem := strings.TrimSuffix(d.Name(), ".java")
		switch {
		case stem == className:
			exact = append(exact, path)
		case strings.EqualFold(stem, className):
			fuzzy = append(fuzzy, path)
		case strings.Contains(strings.ToLower(stem), strings.ToLower(className)):
			fuzzy = append(fuzzy, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(exact) > 0 {
		sort.Slice(exact, func(i, j int) bool { return len(exact[i]) < len(exact[j]) })
		return exact, nil
	}
	sort.Slice(fuzzy, func(i, j int) bool { return len(fuzzy[i]) < len(fuzzy[j]) })
	return fuzzy, nil
}
