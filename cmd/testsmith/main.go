package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testsmith/internal/config"
	"testsmith/internal/gemini"
	"testsmith/internal/inspector"
	"testsmith/internal/logging"
	"testsmith/internal/prompt"
	"testsmith/internal/session"
	"testsmith/internal/store"
	"testsmith/internal/writer"
)

var (
	// Global flags
	verbose     bool
	apiKey      string
	modelName   string
	projectRoot string

	// Logger for non-interactive commands
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testsmith",
	Short: "testsmith - AI-assisted JUnit test generation for Java projects",
	Long: `testsmith loads a Java source file, sends it with project context to the
Gemini API, and returns a generated JUnit 5 test class that you can refine
conversationally before saving into src/test/java.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive mode has its own UI; skip the structured logger
		if cmd.Use == "testsmith" && cmd.CalledAs() == "testsmith" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runInteractiveChat(cfg)
	},
}

// generateCmd produces one test non-interactively
var generateCmd = &cobra.Command{
	Use:   "generate [path or class name]",
	Short: "Generate a test for one class and write it to src/test/java",
	Long: `Generates a test for the given Java source file (or class name, searched
under the source root) in a single shot, without the interactive session.

Example:
  testsmith generate src/main/java/com/example/UserServiceImpl.java --type integration
  testsmith generate UserValidator`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// inspectCmd prints the parsed model of a source file
var inspectCmd = &cobra.Command{
	Use:   "inspect [path or class name]",
	Short: "Parse a Java source file and print what the generator would see",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var (
	generateType string
	generateOut  string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Override the configured Gemini model")
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", "", "Java project root (default: current directory)")

	generateCmd.Flags().StringVarP(&generateType, "type", "t", "", "Test type: unit or integration (default: by naming convention)")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "Write to this path instead of the project's test root")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
}

// loadConfig loads project configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	root := projectRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = cwd
	}

	if err := logging.Initialize(root); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}

	cfg, err := config.LoadForProject(root)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if modelName != "" {
		cfg.LLM.Model = modelName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// historyPath resolves the session history database under the project root.
func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Project.Root, cfg.History.DatabasePath)
}

// resolveSource turns a path-or-class argument into a parsed LoadedSource.
func resolveSource(ctx context.Context, cfg *config.Config, insp *inspector.Inspector, arg string) (*inspector.LoadedSource, error) {
	path := arg
	if _, err := os.Stat(path); err != nil {
		matches, findErr := inspector.FindClass(cfg.SourceDir(), arg)
		if findErr != nil {
			return nil, findErr
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("no Java file matches %q under %s", arg, cfg.SourceDir())
		case 1:
			path = matches[0]
		default:
			return nil, fmt.Errorf("%q is ambiguous, matches: %s", arg, strings.Join(matches, ", "))
		}
	}

	src, err := insp.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	inspector.DiscoverRelated(src, cfg.SourceDir())
	return src, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	insp := inspector.New()
	defer insp.Close()

	ctx := cmd.Context()
	src, err := resolveSource(ctx, cfg, insp, args[0])
	if err != nil {
		return err
	}

	testType := generateType
	if testType == "" {
		testType = inspector.RecommendTestType(src.ClassName)
	}
	if testType != "unit" && testType != "integration" {
		return fmt.Errorf("invalid --type %q: must be unit or integration", testType)
	}
	logger.Info("generating test",
		zap.String("class", src.ClassName),
		zap.String("type", testType))

	client := gemini.NewClient(gemini.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.GetLLMTimeout(),
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	})

	projectCtx := prompt.GatherProjectContext(cfg.Project.Root, cfg.Project.SourceRoot,
		cfg.Project.ArchitectureFile, cfg.Project.MetadataFile)
	composer := prompt.NewComposer(projectCtx, cfg.Project.ContextTokenBudget)

	var hist *store.History
	if cfg.History.Enabled {
		if h, openErr := store.Open(historyPath(cfg)); openErr == nil {
			hist = h
			defer h.Close()
		}
	}

	sess := session.New(composer, client, writer.New(cfg.TestDir()), hist)
	sess.Load(src)

	var code string
	if testType == "integration" {
		code, err = sess.GenerateIntegration(ctx)
	} else {
		code, err = sess.GenerateUnit(ctx)
	}
	if err != nil {
		return err
	}

	if generateOut != "" {
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		if err := os.WriteFile(generateOut, []byte(code), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", generateOut, err)
		}
		logger.Info("test written", zap.String("path", generateOut))
		fmt.Println(generateOut)
		return nil
	}

	path, err := sess.Save()
	if err != nil {
		return err
	}
	logger.Info("test written", zap.String("path", path))
	fmt.Println(path)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	insp := inspector.New()
	defer insp.Close()

	src, err := resolveSource(cmd.Context(), cfg, insp, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("File:     %s\n", src.Path)
	fmt.Printf("Package:  %s\n", src.Package)
	fmt.Printf("Class:    %s (%s)\n", src.ClassName, src.Kind)
	fmt.Printf("Suggested test type: %s\n", inspector.RecommendTestType(src.ClassName))

	if len(src.Fields) > 0 {
		fmt.Println("\nFields:")
		for _, f := range src.Fields {
			fmt.Printf("  %s %s\n", f.Type, f.Name)
		}
	}

	fmt.Println("\nMethods:")
	for _, method := range src.Methods {
		fmt.Printf("  [%s] %s\n", method.Visibility, method.Signature)
	}

	if len(src.Calls) > 0 {
		fmt.Println("\nCollaborator calls:")
		for _, c := range src.Calls {
			fmt.Printf("  %s.%s(...) [%s]\n", c.Receiver, c.Method, c.Kind)
		}
	}

	if len(src.Related) > 0 {
		fmt.Println("\nRelated sources:")
		for category, rf := range src.Related {
			fmt.Printf("  %-12s %s\n", category, rf.Path)
		}
	}
	return nil
}

func main() {
	defer logging.CloseAll()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
