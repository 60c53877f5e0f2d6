package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testsmith/internal/gemini"
	"testsmith/internal/inspector"
	"testsmith/internal/prompt"
	"testsmith/internal/writer"
)

// stubGenerator replays canned responses and records what it was asked.
type stubGenerator struct {
	responses []string
	err       error
	calls     [][]gemini.Turn
	systems   []string
}

func (g *stubGenerator) Generate(_ context.Context, system string, turns []gemini.Turn) (string, error) {
	g.calls = append(g.calls, turns)
	g.systems = append(g.systems, system)
	if g.err != nil {
		return "", g.err
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

const unitResponse = "```java\npackage com.example;\n\nimport org.junit.jupiter.api.Test;\n\nclass UserServiceImplTest {\n    @Test\n    void createUser_ok() {\n    }\n}\n```"

func testSource() *inspector.LoadedSource {
	return &inspector.LoadedSource{
		Path:      "src/main/java/com/example/UserServiceImpl.java",
		Package:   "com.example",
		ClassName: "UserServiceImpl",
		Kind:      "class",
		Content:   "public class UserServiceImpl {}",
	}
}

func newSession(t *testing.T, gen Generator) *Session {
	t.Helper()
	composer := prompt.NewComposer(prompt.ProjectContext{}, 0)
	w := writer.New(filepath.Join(t.TempDir(), "src", "test", "java"))
	return New(composer, gen, w, nil)
}

func TestInitialState(t *testing.T) {
	s := newSession(t, &stubGenerator{})
	assert.Equal(t, StateEmpty, s.State())
	assert.NotEmpty(t, s.ID())
}

func TestGenerateWithoutSource(t *testing.T) {
	s := newSession(t, &stubGenerator{})

	_, err := s.GenerateUnit(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSource)

	_, err = s.GenerateIntegration(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSource)

	assert.Equal(t, StateEmpty, s.State(), "failed generation must not change state")
}

func TestSaveAndShowWithoutTest(t *testing.T) {
	s := newSession(t, &stubGenerator{})
	s.Load(testSource())

	_, err := s.Save()
	assert.ErrorIs(t, err, ErrNoActiveTest)

	_, err = s.Show()
	assert.ErrorIs(t, err, ErrNoActiveTest)

	_, err = s.Refine(context.Background(), "more cases")
	assert.ErrorIs(t, err, ErrNoActiveTest)
}

func TestLoadGenerateSave(t *testing.T) {
	gen := &stubGenerator{responses: []string{unitResponse}}
	s := newSession(t, gen)

	s.Load(testSource())
	assert.Equal(t, StateLoaded, s.State())

	code, err := s.GenerateUnit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGenerated, s.State())
	assert.Contains(t, code, "class UserServiceImplTest")
	assert.NotContains(t, code, "```", "fences are stripped before storing")

	// The generation prompt names the class and carries the source
	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0][0].Text, "UserServiceImplTest")
	assert.Contains(t, gen.systems[0], "JUnit 5")

	path, err := s.Save()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("com", "example", "UserServiceImplTest.java")))

	shown, err := s.Show()
	require.NoError(t, err)
	assert.Equal(t, code, shown)
}

func TestGenerateFailureLeavesStateUnchanged(t *testing.T) {
	gen := &stubGenerator{err: errors.New("boom")}
	s := newSession(t, gen)
	s.Load(testSource())

	_, err := s.GenerateUnit(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateLoaded, s.State())
	assert.Empty(t, s.CurrentTest())
}

func TestRefinementCarriesTranscript(t *testing.T) {
	gen := &stubGenerator{responses: []string{unitResponse, "```java\nclass UserServiceImplTest { /* revised */ }\n```"}}
	s := newSession(t, gen)
	s.Load(testSource())

	_, err := s.GenerateUnit(context.Background())
	require.NoError(t, err)

	revised, err := s.Refine(context.Background(), "use AssertJ everywhere")
	require.NoError(t, err)
	assert.Contains(t, revised, "revised")

	// Refinement call includes the original exchange plus the new request
	require.Len(t, gen.calls, 2)
	refineTurns := gen.calls[1]
	require.Len(t, refineTurns, 3)
	assert.Equal(t, "user", refineTurns[0].Role)
	assert.Equal(t, "model", refineTurns[1].Role)
	assert.Contains(t, refineTurns[2].Text, "use AssertJ everywhere")
}

func TestRefinementFailureKeepsCurrentTest(t *testing.T) {
	gen := &stubGenerator{responses: []string{unitResponse}}
	s := newSession(t, gen)
	s.Load(testSource())

	first, err := s.GenerateUnit(context.Background())
	require.NoError(t, err)

	gen.err = errors.New("rate limited")
	_, err = s.Refine(context.Background(), "more")
	require.Error(t, err)

	assert.Equal(t, first, s.CurrentTest())
	assert.Equal(t, StateGenerated, s.State())
}

func TestIntegrationSaveUsesIntegrationName(t *testing.T) {
	// Response with no type declaration, so the fallback name is used
	resp := "// integration flow exercised through real beans\n" + strings.Repeat("// line\n", 20)
	gen := &stubGenerator{responses: []string{resp}}
	s := newSession(t, gen)
	s.Load(testSource())

	_, err := s.GenerateIntegration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TestTypeIntegration, s.TestType())

	path, err := s.Save()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "UserServiceIntegrationTest.java"), path)
}

func TestLoadClearsPriorGeneration(t *testing.T) {
	gen := &stubGenerator{responses: []string{unitResponse}}
	s := newSession(t, gen)
	s.Load(testSource())

	_, err := s.GenerateUnit(context.Background())
	require.NoError(t, err)

	other := testSource()
	other.ClassName = "OrderServiceImpl"
	s.Load(other)

	assert.Equal(t, StateLoaded, s.State())
	assert.Empty(t, s.CurrentTest())
	_, err = s.Show()
	assert.ErrorIs(t, err, ErrNoActiveTest)
}

func TestResetAlwaysReturnsToEmpty(t *testing.T) {
	gen := &stubGenerator{responses: []string{unitResponse}}
	s := newSession(t, gen)

	// Reset from empty
	s.Reset()
	assert.Equal(t, StateEmpty, s.State())

	// Reset from generated
	s.Load(testSource())
	_, err := s.GenerateUnit(context.Background())
	require.NoError(t, err)
	s.Reset()

	assert.Equal(t, StateEmpty, s.State())
	assert.Nil(t, s.Source())
	assert.Empty(t, s.CurrentTest())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "loaded", StateLoaded.String())
	assert.Equal(t, "generated", StateGenerated.String())
}
