// Package writer persists generated test code into the project's test tree.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"testsmith/internal/logging"
)

// minPlausibleTestChars guards against saving obviously incomplete output.
const minPlausibleTestChars = 100

var fenceRe = regexp.MustCompile("(?s)```(?:java)?\\s*\\n(.*?)```")

// StripFences extracts Java code from a markdown-fenced model response.
// If no fence is found the input is returned trimmed.
func StripFences(response string) string {
	if m := fenceRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

// TestClassName extracts the test class name from generated code.
// Returns "" when no class declaration is found.
func TestClassName(code string) string {
	re := regexp.MustCompile(`(?m)\bclass\s+(\w+)`)
	if m := re.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return ""
}

// OutputPath computes where a test class belongs:
// <testRoot>/<package path>/<TestClassName>.java.
// When the generated code carries no class name, className falls back to
// the provided default.
func OutputPath(testRoot, pkg, className string) string {
	pkgPath := strings.ReplaceAll(pkg, ".", string(filepath.Separator))
	return filepath.Join(testRoot, pkgPath, className+".java")
}

// Writer saves test files under the project's test root.
type Writer struct {
	testRoot string
}

// New creates a Writer rooted at testRoot.
func New(testRoot string) *Writer {
	return &Writer{testRoot: testRoot}
}

// Save writes test code for the given package, deriving the filename from
// the class declaration in the code with defaultClassName as fallback.
// Returns the written path.
func (w *Writer) Save(code, pkg, defaultClassName string) (string, error) {
	code = StripFences(code)

	if len(code) < minPlausibleTestChars {
		return "", fmt.Errorf("generated code is only %d characters, refusing to save an incomplete test", len(code))
	}

	className := TestClassName(code)
	if className == "" {
		className = defaultClassName
	}
	if className == "" {
		return "", fmt.Errorf("cannot determine test class name from generated code")
	}

	path := OutputPath(w.testRoot, pkg, className)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create test directory: %w", err)
	}

	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write test file: %w", err)
	}

	logging.Writer("saved %s (%d bytes)", path, len(code))
	return path, nil
}
