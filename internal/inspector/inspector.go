// Package inspector parses Java source files into a structured model
// used for prompt composition. Parsing uses tree-sitter's Java grammar.
package inspector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"testsmith/internal/logging"
)

// maxMethodBodyChars caps how much of a method body is carried into prompts.
const maxMethodBodyChars = 800

// ParseError indicates a Java file could not be parsed into a usable model.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s: %s", e.Path, e.Reason)
}

// Method is a parsed Java method.
type Method struct {
	Name       string
	ReturnType string
	Signature  string
	Visibility string // public, protected, private, package
	Body       string // capped at maxMethodBodyChars
}

// Field is a parsed Java field, typically an injected collaborator.
type Field struct {
	Name string
	Type string
}

// LoadedSource is the parsed model of one Java source file.
type LoadedSource struct {
	Path      string
	Package   string
	ClassName string
	Kind      string // class, interface, enum, record
	Methods   []Method
	Fields    []Field
	Imports   []string
	Content   string
	LoadedAt  time.Time

	// Collaborator calls extracted from method bodies (see calls.go)
	Calls []CollaboratorCall

	// Related project files keyed by category (see related.go)
	Related map[string]RelatedFile
}

// PublicMethods returns only the public methods, the ones tests target.
func (s *LoadedSource) PublicMethods() []Method {
	var out []Method
	for _, m := range s.Methods {
		if m.Visibility == "public" {
			out = append(out, m)
		}
	}
	return out
}

// Inspector parses Java sources.
type Inspector struct {
	parser *sitter.Parser
}

// New creates an Inspector with a Java parser.
func New() *Inspector {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &Inspector{parser: p}
}

// Close releases parser resources.
func (i *Inspector) Close() {
	i.parser.Close()
}

// Load reads and parses a Java source file.
func (i *Inspector) Load(ctx context.Context, path string) (*LoadedSource, error) {
	timer := logging.StartTimer(logging.CategoryInspector, "load "+filepath.Base(path))
	defer timer.Stop()

	if !strings.HasSuffix(path, ".java") {
		return nil, &ParseError{Path: path, Reason: "not a .java file"}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	src, err := i.Parse(ctx, path, content)
	if err != nil {
		return nil, err
	}

	logging.Inspector("loaded %s: class=%s package=%s methods=%d fields=%d",
		filepath.Base(path), src.ClassName, src.Package, len(src.Methods), len(src.Fields))
	return src, nil
}

// Parse parses Java source content into a LoadedSource.
func (i *Inspector) Parse(ctx context.Context, path string, content []byte) (*LoadedSource, error) {
	tree, err := i.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{Path: path, Reason: "empty parse tree"}
	}

	src := &LoadedSource{
		Path:     path,
		Content:  string(content),
		LoadedAt: time.Now(),
		Related:  make(map[string]RelatedFile),
	}

	getText := func(n *sitter.Node) string {
		return n.Content(content)
	}

	var walkType func(n *sitter.Node)
	walkType = func(n *sitter.Node) {
		for c := 0; c < int(n.NamedChildCount()); c++ {
			child := n.NamedChild(c)
			switch child.Type() {
			case "package_declaration":
				// Child is an identifier or scoped_identifier
				for j := 0; j < int(child.NamedChildCount()); j++ {
					pc := child.NamedChild(j)
					if pc.Type() == "identifier" || pc.Type() == "scoped_identifier" {
						src.Package = getText(pc)
					}
				}

			case "import_declaration":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					ic := child.NamedChild(j)
					if ic.Type() == "identifier" || ic.Type() == "scoped_identifier" {
						src.Imports = append(src.Imports, getText(ic))
					}
				}

			case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
				// Only the first top-level type is the subject under test
				if src.ClassName != "" {
					continue
				}
				nameNode := child.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				src.ClassName = getText(nameNode)
				src.Kind = strings.TrimSuffix(child.Type(), "_declaration")

				body := child.ChildByFieldName("body")
				if body != nil {
					i.extractMembers(body, content, src)
				}
			}
		}
	}
	walkType(root)

	if src.ClassName == "" {
		return nil, &ParseError{Path: path, Reason: "no class, interface, enum, or record declaration found"}
	}

	src.Calls = ExtractCalls(src.Content)
	return src, nil
}

// extractMembers pulls fields and methods from a class body node.
func (i *Inspector) extractMembers(body *sitter.Node, content []byte, src *LoadedSource) {
	getText := func(n *sitter.Node) string {
		return n.Content(content)
	}

	for j := 0; j < int(body.NamedChildCount()); j++ {
		member := body.NamedChild(j)
		switch member.Type() {
		case "field_declaration":
			typeNode := member.ChildByFieldName("type")
			declNode := member.ChildByFieldName("declarator")
			if typeNode == nil || declNode == nil {
				continue
			}
			nameNode := declNode.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			src.Fields = append(src.Fields, Field{
				Name: getText(nameNode),
				Type: getText(typeNode),
			})

		case "method_declaration":
			nameNode := member.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := getText(nameNode)

			returnType := ""
			if tn := member.ChildByFieldName("type"); tn != nil {
				returnType = getText(tn)
			}

			params := "()"
			if pn := member.ChildByFieldName("parameters"); pn != nil {
				params = getText(pn)
			}

			visibility := visibilityOf(member, content)

			bodyText := ""
			if bn := member.ChildByFieldName("body"); bn != nil {
				bodyText = getText(bn)
				if len(bodyText) > maxMethodBodyChars {
					bodyText = bodyText[:maxMethodBodyChars] + "\n    // ... truncated"
				}
			}

			src.Methods = append(src.Methods, Method{
				Name:       name,
				ReturnType: returnType,
				Signature:  fmt.Sprintf("%s %s%s", returnType, name, params),
				Visibility: visibility,
				Body:       bodyText,
			})
		}
	}
}

// visibilityOf reads the modifiers node of a member declaration.
func visibilityOf(member *sitter.Node, content []byte) string {
	for k := 0; k < int(member.ChildCount()); k++ {
		child := member.Child(k)
		if child.Type() != "modifiers" {
			continue
		}
		mods := child.Content(content)
		switch {
		case strings.Contains(mods, "public"):
			return "public"
		case strings.Contains(mods, "protected"):
			return "protected"
		case strings.Contains(mods, "private"):
			return "private"
		}
	}
	return "package"
}

// RecommendTestType suggests unit or integration testing based on naming
// conventions: service implementations and controllers exercise wiring and
// are better served by integration tests, mappers and validators by unit tests.
func RecommendTestType(className string) string {
	switch {
	case strings.HasSuffix(className, "ServiceImpl"), strings.HasSuffix(className, "Controller"):
		return "integration"
	case strings.HasSuffix(className, "Mapper"), strings.HasSuffix(className, "Validator"):
		return "unit"
	default:
		return "unit"
	}
}
