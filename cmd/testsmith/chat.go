// Package main provides the testsmith CLI entry point.
// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	userconfig "testsmith/cmd/testsmith/config"
	"testsmith/cmd/testsmith/ui"
	"testsmith/internal/config"
	"testsmith/internal/gemini"
	"testsmith/internal/inspector"
	"testsmith/internal/prompt"
	"testsmith/internal/session"
	"testsmith/internal/store"
	"testsmith/internal/watch"
	"testsmith/internal/writer"
)

// chatModel is the main model for the interactive chat interface
type chatModel struct {
	// UI Components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	history   []chatMessage
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool
	turnCount int

	// Backend
	cfg       *config.Config
	sess      *session.Session
	insp      *inspector.Inspector
	watcher   *watch.SourceWatcher
	workspace string
}

type chatMessage struct {
	role    string // "user" or "assistant"
	content string
	time    time.Time
}

// Messages for tea updates
type (
	responseMsg      string
	errorMsg         error
	sourceChangedMsg watch.Event
)

// initChat initializes the interactive chat model with all backend components wired.
func initChat(cfg *config.Config, hist *store.History) chatModel {
	userCfg, _ := userconfig.Load()

	styles := ui.DefaultStyles()
	switch userCfg.Theme {
	case "dark":
		styles = ui.NewStyles(ui.DarkTheme())
	case "light":
		styles = ui.NewStyles(ui.LightTheme())
	}

	ti := textinput.New()
	ti.Placeholder = "load <class>, unit, integration, save... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	workspace := cfg.Project.Root
	if workspace == "" || workspace == "." {
		workspace, _ = os.Getwd()
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.GetLLMTimeout(),
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	})

	projectCtx := prompt.GatherProjectContext(workspace, cfg.Project.SourceRoot,
		cfg.Project.ArchitectureFile, cfg.Project.MetadataFile)
	composer := prompt.NewComposer(projectCtx, cfg.Project.ContextTokenBudget)

	sess := session.New(composer, client, writer.New(cfg.TestDir()), hist)
	if hist != nil {
		_ = hist.StartSession(sess.ID(), cfg.LLM.Model, workspace)
	}

	watcher, _ := watch.New()

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		history:   []chatMessage{},
		cfg:       cfg,
		sess:      sess,
		insp:      inspector.New(),
		watcher:   watcher,
		workspace: workspace,
	}
}

func (m chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
	}
	if m.watcher != nil {
		m.watcher.Start(context.Background())
		cmds = append(cmds, waitForSourceChange(m.watcher))
	}
	return tea.Batch(cmds...)
}

// waitForSourceChange blocks on the watcher's event channel and feeds
// changes into the update loop.
func waitForSourceChange(w *watch.SourceWatcher) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-w.Events()
		if !ok {
			return nil
		}
		return sourceChangedMsg(ev)
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.quit()

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 3
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case responseMsg:
		m.isLoading = false
		m.err = nil
		m.turnCount++
		m.history = append(m.history, chatMessage{
			role:    "assistant",
			content: string(msg),
			time:    time.Now(),
		})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case errorMsg:
		m.isLoading = false
		m.err = msg
		m.history = append(m.history, chatMessage{
			role:    "assistant",
			content: m.formatError(msg),
			time:    time.Now(),
		})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case sourceChangedMsg:
		ev := watch.Event(msg)
		var note string
		if ev.Removed {
			note = fmt.Sprintf("⚠️ **%s was deleted.** The loaded snapshot is kept; `load` it again if it comes back.", filepath.Base(ev.Path))
		} else {
			note = fmt.Sprintf("⚠️ **%s changed on disk.** Generated tests may be stale; `load %s` to pick up the new version.", filepath.Base(ev.Path), filepath.Base(ev.Path))
		}
		m.history = append(m.history, chatMessage{
			role:    "assistant",
			content: note,
			time:    time.Now(),
		})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, waitForSourceChange(m.watcher)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) quit() tea.Cmd {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.insp != nil {
		m.insp.Close()
	}
	return tea.Quit
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	m.history = append(m.history, chatMessage{
		role:    "user",
		content: input,
		time:    time.Now(),
	})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	// Commands are bare words; a leading slash also works
	command := strings.TrimPrefix(input, "/")
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return m.respond("Type `help` for the list of commands."), nil
	}
	verb := strings.ToLower(parts[0])

	switch verb {
	case "quit", "exit", "q":
		return m, m.quit()

	case "help":
		return m.respond(helpText), nil

	case "clear":
		m.history = []chatMessage{}
		m.viewport.SetContent("")
		return m, nil

	case "load":
		if len(parts) < 2 {
			return m.respond("Usage: `load <path or class name>`\n\nExamples:\n```\nload src/main/java/com/example/UserServiceImpl.java\nload UserServiceImpl\n```"), nil
		}
		return m.handleLoad(strings.Join(parts[1:], " "))

	case "unit":
		return m.startGeneration(session.TestTypeUnit)

	case "integration":
		return m.startGeneration(session.TestTypeIntegration)

	case "save":
		path, err := m.sess.Save()
		if err != nil {
			return m.respondErr(err), nil
		}
		return m.respond(fmt.Sprintf("💾 Saved to `%s`", path)), nil

	case "show":
		code, err := m.sess.Show()
		if err != nil {
			return m.respondErr(err), nil
		}
		return m.respond(fmt.Sprintf("```java\n%s\n```", code)), nil

	case "deps":
		return m.handleDeps()

	case "reset":
		m.sess.Reset()
		if m.watcher != nil {
			_ = m.watcher.Watch("")
		}
		return m.respond("Session reset. `load` a source file to start again."), nil
	}

	// Free text: a refinement request when a test exists, otherwise a hint
	if m.sess.CurrentTest() != "" {
		m.isLoading = true
		return m, tea.Batch(m.spinner.Tick, m.refineCmd(input))
	}
	return m.respond("No test to refine yet. Try `load <class>` then `unit` or `integration`, or `help` for commands."), nil
}

// handleLoad resolves the argument to a Java file, parses it, and makes it
// the active source.
func (m chatModel) handleLoad(arg string) (tea.Model, tea.Cmd) {
	path := arg
	if _, err := os.Stat(path); err != nil {
		// Not a path: search by class name under the source root
		matches, findErr := inspector.FindClass(m.cfg.SourceDir(), arg)
		if findErr != nil || len(matches) == 0 {
			return m.respond(fmt.Sprintf("Could not find `%s` as a file or class under `%s`.", arg, m.cfg.SourceDir())), nil
		}
		if len(matches) > 1 {
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("`%s` matches %d files, load one of:\n", arg, len(matches)))
			for i, match := range matches {
				if i >= 8 {
					sb.WriteString(fmt.Sprintf("_...and %d more_\n", len(matches)-i))
					break
				}
				sb.WriteString(fmt.Sprintf("- `load %s`\n", match))
			}
			return m.respond(sb.String()), nil
		}
		path = matches[0]
	}

	src, err := m.insp.Load(context.Background(), path)
	if err != nil {
		return m.respondErr(err), nil
	}

	inspector.DiscoverRelated(src, m.cfg.SourceDir())
	m.sess.Load(src)
	if m.watcher != nil {
		_ = m.watcher.Watch(src.Path)
	}

	return m.respond(m.formatLoaded(src)), nil
}

func (m chatModel) formatLoaded(src *inspector.LoadedSource) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Loaded %s\n\n", src.ClassName)
	fmt.Fprintf(&sb, "- **Package**: %s\n", src.Package)
	fmt.Fprintf(&sb, "- **Kind**: %s\n", src.Kind)
	fmt.Fprintf(&sb, "- **Public methods**: %d\n", len(src.PublicMethods()))
	fmt.Fprintf(&sb, "- **Collaborators**: %d fields, %d observed calls\n", len(src.Fields), len(src.Calls))
	if len(src.Related) > 0 {
		cats := make([]string, 0, len(src.Related))
		for cat := range src.Related {
			cats = append(cats, cat)
		}
		fmt.Fprintf(&sb, "- **Related sources**: %s\n", strings.Join(cats, ", "))
	}

	recommended := inspector.RecommendTestType(src.ClassName)
	fmt.Fprintf(&sb, "\nRecommended: `%s` (based on the class naming convention). `integration` and `unit` both work.\n", recommended)
	return sb.String()
}

func (m chatModel) handleDeps() (tea.Model, tea.Cmd) {
	src := m.sess.Source()
	if src == nil {
		return m.respondErr(session.ErrNoActiveSource), nil
	}
	if len(src.Calls) == 0 && len(src.Fields) == 0 {
		return m.respond(fmt.Sprintf("No injected collaborators found in %s.", src.ClassName)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Collaborators of %s\n\n", src.ClassName)
	if len(src.Fields) > 0 {
		sb.WriteString("Injected fields:\n")
		for _, f := range src.Fields {
			fmt.Fprintf(&sb, "- `%s %s`\n", f.Type, f.Name)
		}
	}
	if len(src.Calls) > 0 {
		sb.WriteString("\nCalls to stub or verify:\n")
		for _, c := range src.Calls {
			fmt.Fprintf(&sb, "- `%s.%s(...)` _(%s)_\n", c.Receiver, c.Method, c.Kind)
		}
	}
	return m.respond(sb.String()), nil
}

func (m chatModel) startGeneration(tt session.TestType) (tea.Model, tea.Cmd) {
	if m.sess.Source() == nil {
		return m.respondErr(session.ErrNoActiveSource), nil
	}
	m.isLoading = true
	return m, tea.Batch(m.spinner.Tick, m.generateCmd(tt))
}

// generateCmd runs generation in the background and reports the result.
func (m chatModel) generateCmd(tt session.TestType) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx := context.Background()

		var (
			code string
			err  error
		)
		if tt == session.TestTypeIntegration {
			code, err = sess.GenerateIntegration(ctx)
		} else {
			code, err = sess.GenerateUnit(ctx)
		}
		if err != nil {
			return errorMsg(err)
		}
		return responseMsg(fmt.Sprintf("```java\n%s\n```\n\n`save` to write it, `show` to reprint, or describe a change to refine.", code))
	}
}

// refineCmd runs a refinement turn in the background.
func (m chatModel) refineCmd(request string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		code, err := sess.Refine(context.Background(), request)
		if err != nil {
			return errorMsg(err)
		}
		return responseMsg(fmt.Sprintf("```java\n%s\n```\n\n`save` to write it, or keep refining.", code))
	}
}

// respond appends an assistant message without starting background work.
func (m chatModel) respond(content string) chatModel {
	m.history = append(m.history, chatMessage{
		role:    "assistant",
		content: content,
		time:    time.Now(),
	})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m
}

func (m chatModel) respondErr(err error) chatModel {
	return m.respond(m.formatError(err))
}

func (m chatModel) formatError(err error) string {
	switch {
	case errors.Is(err, gemini.ErrRateLimited):
		return "⏳ **The Gemini API is rate limiting requests.** Wait a minute or two, then retry the same command."
	case errors.Is(err, session.ErrNoActiveSource):
		return "No source loaded. Use `load <path or class name>` first."
	case errors.Is(err, session.ErrNoActiveTest):
		return "No test generated yet. Run `unit` or `integration` first."
	default:
		return fmt.Sprintf("❌ %v", err)
	}
}

const helpText = `## Commands

| Command | Effect |
|---------|--------|
| ` + "`load <path or class>`" + ` | Parse a Java source file and make it the active subject |
| ` + "`unit`" + ` | Generate a JUnit 5 + Mockito unit test |
| ` + "`integration`" + ` | Generate a @SpringBootTest integration test |
| ` + "`save`" + ` | Write the current test into src/test/java |
| ` + "`show`" + ` | Reprint the current test |
| ` + "`deps`" + ` | List the collaborators of the loaded class |
| ` + "`reset`" + ` | Drop the loaded source and the current test |
| ` + "`clear`" + ` | Clear the screen |
| ` + "`quit`" + ` | Exit |

Anything else you type while a test exists is treated as a refinement request, e.g. _"add a test for the null email case"_.`

func (m chatModel) renderHistory() string {
	var sb strings.Builder

	for _, msg := range m.history {
		if msg.role == "user" {
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.content))
			sb.WriteString("\n\n")
		} else {
			assistantStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(assistantStyle.Render("🔧 testsmith") + "\n")

			sb.WriteString(m.safeRenderMarkdown(msg.content))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			// If glamour panics, return plain text
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())

	if m.isLoading {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Generating..."
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.renderFooter()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" 🔧 testsmith ")
	model := m.styles.Badge.Render(m.cfg.LLM.Model)

	var subject string
	if src := m.sess.Source(); src != nil {
		subject = m.styles.Muted.Render(fmt.Sprintf(" ☕ %s", src.ClassName))
	} else {
		subject = m.styles.Muted.Render(" ☕ no source loaded")
	}

	var status string
	if m.isLoading {
		status = m.styles.Warning.Render("● Generating")
	} else {
		status = m.styles.Success.Render("● " + m.sess.State().String())
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		" ",
		model,
		"  ",
		status,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		subject,
		m.styles.RenderDivider(m.width),
	)
}

func (m chatModel) renderFooter() string {
	help := m.styles.Muted.Render("Enter: send • help: commands • Ctrl+C: exit")
	return lipgloss.NewStyle().
		MarginTop(1).
		Render(help)
}

// runInteractiveChat starts the bubbletea program. Credentials are checked
// up front so a missing key fails fast instead of on the first generation.
func runInteractiveChat(cfg *config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		// Last fallback: the user-level config file
		userCfg, _ := userconfig.Load()
		if userCfg.APIKey == "" {
			return err
		}
		cfg.LLM.APIKey = userCfg.APIKey
	}

	var hist *store.History
	if cfg.History.Enabled {
		h, err := store.Open(historyPath(cfg))
		if err == nil {
			hist = h
			defer h.Close()
		}
	}

	p := tea.NewProgram(
		initChat(cfg, hist),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err := p.Run()
	return err
}
