// Package prompt composes the system and user prompts sent to the model.
// Composition is deterministic: the same loaded source and project context
// always produce byte-identical prompts.
package prompt

import (
	"fmt"
	"path/filepath"
	"strings"

	"testsmith/internal/inspector"
	"testsmith/internal/logging"
)

// relatedOrder fixes the order related files appear in prompts.
var relatedOrder = []string{"entity", "dto", "mapper", "validator", "dao", "service", "service_impl"}

// Composer builds prompts for test generation.
type Composer struct {
	project            ProjectContext
	relatedTokenBudget int
}

// NewComposer creates a Composer with the given project context and a
// token budget for related-source material.
func NewComposer(project ProjectContext, relatedTokenBudget int) *Composer {
	if relatedTokenBudget <= 0 {
		relatedTokenBudget = 6000
	}
	return &Composer{
		project:            project,
		relatedTokenBudget: relatedTokenBudget,
	}
}

// System returns the system instruction establishing the testing standards.
func (c *Composer) System() string {
	var b strings.Builder

	b.WriteString(`You are a senior Java engineer writing tests for a Spring Boot project.

Testing standards:
- JUnit 5 (org.junit.jupiter) for all tests
- Mockito for mocking collaborators
- AssertJ (org.assertj.core.api.Assertions.assertThat) for assertions
- Instancio for building test fixtures of entities and DTOs
- One test class per production class, descriptive @DisplayName on each test
- Cover happy paths, boundary values, and failure paths (exceptions, validation errors)

Mockito rules:
- Use @ExtendWith(MockitoExtension.class) with @Mock and @InjectMocks for unit tests
- Stub only what the test needs; unnecessary stubbings fail under strict mode
- Use verify() for side effects (inserts, deletes, notifications), assertThat for return values
- Never mock the class under test, value objects, or entities
- Match argument types exactly: any() does not match primitives, use anyLong()/anyInt()

Required imports when used:
- import static org.assertj.core.api.Assertions.assertThat;
- import static org.assertj.core.api.Assertions.assertThatThrownBy;
- import static org.mockito.Mockito.*;
- import org.instancio.Instancio;

Output rules:
- Respond with a single complete, compilable Java test file
- Wrap the code in a single `)
	b.WriteString("```java fenced block with nothing else outside it")
	b.WriteString("\n")

	if c.project.Structure != "" {
		b.WriteString("\nProject structure:\n")
		b.WriteString(c.project.Structure)
	}
	if c.project.Architecture != "" {
		b.WriteString("\nProject architecture notes:\n")
		b.WriteString(c.project.Architecture)
		b.WriteString("\n")
	}
	if c.project.Metadata != "" {
		b.WriteString("\nProject metadata:\n")
		b.WriteString(c.project.Metadata)
		b.WriteString("\n")
	}

	return b.String()
}

// Unit returns the user prompt requesting a unit test for the loaded source.
func (c *Composer) Unit(src *inspector.LoadedSource) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a JUnit 5 unit test class named %sTest for the class below.\n", src.ClassName)
	b.WriteString("Mock all injected collaborators with Mockito and test each public method in isolation.\n")
	b.WriteString("The test class goes in the same package as the class under test.\n\n")

	c.writeSourceSection(&b, src)
	c.writeCollaboratorSection(&b, src)
	c.writeRelatedSection(&b, src)

	prompt := b.String()
	logging.Prompt("composed unit prompt for %s: %d tokens", src.ClassName, CountTokens(prompt))
	return prompt
}

// Integration returns the user prompt requesting an integration test.
func (c *Composer) Integration(src *inspector.LoadedSource) string {
	testClass := IntegrationTestClassName(src.ClassName)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a Spring Boot integration test class named %s for the class below.\n", testClass)
	b.WriteString("Use @SpringBootTest with real wiring, @Transactional for database rollback,\n")
	b.WriteString("and exercise the full flow through injected beans rather than mocks.\n")
	b.WriteString("Build test entities with Instancio and persist them through the real mappers.\n\n")

	c.writeSourceSection(&b, src)
	c.writeRelatedSection(&b, src)

	prompt := b.String()
	logging.Prompt("composed integration prompt for %s: %d tokens", src.ClassName, CountTokens(prompt))
	return prompt
}

// Refinement returns the user prompt for an iterative change request against
// previously generated test code.
func (c *Composer) Refinement(request string) string {
	var b strings.Builder
	b.WriteString("Revise the test class you produced according to this request:\n\n")
	b.WriteString(strings.TrimSpace(request))
	b.WriteString("\n\nRespond with the complete updated Java test file in a single ```java block.\n")
	return b.String()
}

func (c *Composer) writeSourceSection(b *strings.Builder, src *inspector.LoadedSource) {
	fmt.Fprintf(b, "Class under test: %s.%s (%s)\n", src.Package, src.ClassName, src.Kind)

	pub := src.PublicMethods()
	if len(pub) > 0 {
		b.WriteString("Public methods to cover:\n")
		for _, m := range pub {
			fmt.Fprintf(b, "  - %s\n", m.Signature)
		}
	}

	b.WriteString("\nSource:\n```java\n")
	b.WriteString(src.Content)
	if !strings.HasSuffix(src.Content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
}

func (c *Composer) writeCollaboratorSection(b *strings.Builder, src *inspector.LoadedSource) {
	if len(src.Calls) == 0 {
		return
	}
	b.WriteString("\nCollaborator calls observed in the source (stub or verify these):\n")
	for _, call := range src.Calls {
		fmt.Fprintf(b, "  - %s.%s(...) [%s]\n", call.Receiver, call.Method, call.Kind)
	}
}

func (c *Composer) writeRelatedSection(b *strings.Builder, src *inspector.LoadedSource) {
	if len(src.Related) == 0 {
		return
	}

	// Below this many remaining tokens a file excerpt is too small to be useful
	const minRelatedTokens = 50

	remaining := c.relatedTokenBudget
	wrote := false
	for _, category := range relatedOrder {
		rf, ok := src.Related[category]
		if !ok || remaining < minRelatedTokens {
			continue
		}
		content := TruncateToBudget(rf.Content, remaining)
		if content == "" {
			continue
		}
		if !wrote {
			b.WriteString("\nRelated project sources for reference:\n")
			wrote = true
		}
		fmt.Fprintf(b, "\n// %s: %s\n```java\n%s\n```\n", category, filepath.Base(rf.Path), content)
		remaining -= CountTokens(content)
	}
}

// IntegrationTestClassName derives the integration test class name:
// UserServiceImpl -> UserServiceIntegrationTest.
func IntegrationTestClassName(className string) string {
	return strings.TrimSuffix(className, "Impl") + "IntegrationTest"
}
