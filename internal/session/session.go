// Package session holds the interactive session state machine: which
// source is loaded, what test was last generated, and the conversation
// carried into refinement turns.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"testsmith/internal/gemini"
	"testsmith/internal/inspector"
	"testsmith/internal/logging"
	"testsmith/internal/prompt"
	"testsmith/internal/store"
	"testsmith/internal/writer"
)

// Sentinel errors for operations attempted in the wrong state.
var (
	// ErrNoActiveSource is returned when generation is requested before
	// a source file has been loaded.
	ErrNoActiveSource = errors.New("no source loaded: use load <path or class name> first")

	// ErrNoActiveTest is returned when save, show, or refinement is
	// requested before any test has been generated.
	ErrNoActiveTest = errors.New("no test generated yet: run unit or integration first")
)

// State is the session lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateGenerated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// TestType distinguishes the two generation modes.
type TestType string

const (
	TestTypeUnit        TestType = "unit"
	TestTypeIntegration TestType = "integration"
)

// Generator produces model output for a system prompt plus conversation.
// *gemini.Client satisfies this; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, turns []gemini.Turn) (string, error)
}

// Session drives one interactive test-generation conversation.
type Session struct {
	id        string
	composer  *prompt.Composer
	generator Generator
	writer    *writer.Writer
	history   *store.History

	state       State
	source      *inspector.LoadedSource
	transcript  []gemini.Turn
	currentTest string
	testType    TestType
	generatedAt time.Time
}

// New creates a Session. history may be nil.
func New(composer *prompt.Composer, generator Generator, w *writer.Writer, history *store.History) *Session {
	return &Session{
		id:        uuid.NewString(),
		composer:  composer,
		generator: generator,
		writer:    w,
		history:   history,
		state:     StateEmpty,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Source returns the loaded source, or nil.
func (s *Session) Source() *inspector.LoadedSource { return s.source }

// CurrentTest returns the most recently generated test code, or "".
func (s *Session) CurrentTest() string { return s.currentTest }

// TestType returns the type of the most recent generation.
func (s *Session) TestType() TestType { return s.testType }

// Load replaces the active source. Any previous transcript and generated
// test belong to the old source and are discarded.
func (s *Session) Load(src *inspector.LoadedSource) {
	s.source = src
	s.transcript = nil
	s.currentTest = ""
	s.testType = ""
	s.state = StateLoaded

	logging.Session("session %s: loaded %s (%s), state=%s", s.id, src.ClassName, src.Path, s.state)
	s.record("user", "command", fmt.Sprintf("load %s", src.Path))
}

// Reset returns the session to the empty state unconditionally.
func (s *Session) Reset() {
	s.source = nil
	s.transcript = nil
	s.currentTest = ""
	s.testType = ""
	s.state = StateEmpty

	logging.Session("session %s: reset, state=%s", s.id, s.state)
	s.record("user", "command", "reset")
}

// GenerateUnit asks the model for a unit test of the loaded source.
func (s *Session) GenerateUnit(ctx context.Context) (string, error) {
	return s.generate(ctx, TestTypeUnit)
}

// GenerateIntegration asks the model for an integration test of the loaded source.
func (s *Session) GenerateIntegration(ctx context.Context) (string, error) {
	return s.generate(ctx, TestTypeIntegration)
}

func (s *Session) generate(ctx context.Context, tt TestType) (string, error) {
	if s.source == nil {
		return "", ErrNoActiveSource
	}

	var userPrompt string
	switch tt {
	case TestTypeIntegration:
		userPrompt = s.composer.Integration(s.source)
	default:
		userPrompt = s.composer.Unit(s.source)
	}

	// Each generation starts a fresh conversation for the loaded source;
	// only refinements build on prior turns.
	turns := []gemini.Turn{{Role: "user", Text: userPrompt}}

	response, err := s.generator.Generate(ctx, s.composer.System(), turns)
	if err != nil {
		// State is untouched on remote failure
		logging.SessionError("session %s: %s generation failed: %v", s.id, tt, err)
		s.record("model", "error", err.Error())
		return "", fmt.Errorf("%s test generation failed: %w", tt, err)
	}

	s.transcript = append(turns, gemini.Turn{Role: "model", Text: response})
	s.currentTest = writer.StripFences(response)
	s.testType = tt
	s.generatedAt = time.Now()
	s.state = StateGenerated

	logging.Session("session %s: generated %s test for %s (%d chars), state=%s",
		s.id, tt, s.source.ClassName, len(s.currentTest), s.state)
	s.record("user", "command", string(tt))
	s.record("model", "generation", s.currentTest)
	return s.currentTest, nil
}

// Refine sends a free-text change request against the current test and
// replaces it with the revised version.
func (s *Session) Refine(ctx context.Context, request string) (string, error) {
	if s.currentTest == "" {
		return "", ErrNoActiveTest
	}

	turns := append(append([]gemini.Turn{}, s.transcript...),
		gemini.Turn{Role: "user", Text: s.composer.Refinement(request)})

	response, err := s.generator.Generate(ctx, s.composer.System(), turns)
	if err != nil {
		logging.SessionError("session %s: refinement failed: %v", s.id, err)
		s.record("model", "error", err.Error())
		return "", fmt.Errorf("refinement failed: %w", err)
	}

	s.transcript = append(turns, gemini.Turn{Role: "model", Text: response})
	s.currentTest = writer.StripFences(response)

	logging.Session("session %s: refined test (%d chars)", s.id, len(s.currentTest))
	s.record("user", "refinement", request)
	s.record("model", "generation", s.currentTest)
	return s.currentTest, nil
}

// Save writes the current test into the project's test tree and returns
// the written path.
func (s *Session) Save() (string, error) {
	if s.currentTest == "" {
		return "", ErrNoActiveTest
	}

	path, err := s.writer.Save(s.currentTest, s.source.Package, s.defaultTestClassName())
	if err != nil {
		return "", err
	}
	s.record("user", "command", "save "+path)
	return path, nil
}

// Show returns the current test for display.
func (s *Session) Show() (string, error) {
	if s.currentTest == "" {
		return "", ErrNoActiveTest
	}
	return s.currentTest, nil
}

func (s *Session) defaultTestClassName() string {
	if s.source == nil {
		return ""
	}
	if s.testType == TestTypeIntegration {
		return prompt.IntegrationTestClassName(s.source.ClassName)
	}
	return s.source.ClassName + "Test"
}

// record appends a turn to the history store, best-effort.
func (s *Session) record(role, kind, content string) {
	if s.history == nil {
		return
	}
	className := ""
	if s.source != nil {
		className = s.source.ClassName
	}
	_ = s.history.RecordTurn(store.Turn{
		SessionID: s.id,
		Role:      role,
		Kind:      kind,
		ClassName: className,
		Content:   content,
	})
}
