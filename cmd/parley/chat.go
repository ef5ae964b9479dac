package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nevindra/parley"
	"github.com/nevindra/parley/code"
	"github.com/nevindra/parley/internal/config"
	"github.com/nevindra/parley/observer"
	"github.com/nevindra/parley/provider/resolve"
	toolscode "github.com/nevindra/parley/tools/code"
	"github.com/nevindra/parley/tools/docs"
	"github.com/nevindra/parley/tools/file"
	"github.com/nevindra/parley/tools/pdf"
	"github.com/nevindra/parley/tools/web"
)

func runChat(configPath string, debug bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := config.Load(configPath)
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider != "ollama" {
		return fmt.Errorf("no API key: set [llm] api_key in the config or PARLEY_LLM_API_KEY")
	}

	model, err := resolve.Model(resolve.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
		Thinking:    cfg.LLM.Thinking,
	})
	if err != nil {
		return err
	}

	kit, err := buildToolkit(cfg)
	if err != nil {
		return err
	}

	var formatter parley.Formatter = parley.NewChatFormatter()
	if cfg.Agent.TokenBudget > 0 {
		formatter = parley.NewTruncatingFormatter(formatter, parley.SimpleCounterForOpenAI(), cfg.Agent.TokenBudget)
	}

	opts := []parley.Option{
		parley.WithSysPrompt(cfg.Agent.SystemPrompt),
		parley.WithFormatter(formatter),
		parley.WithToolkit(kit),
		parley.WithMaxIters(cfg.Agent.MaxIters),
		parley.WithParallelTools(cfg.Agent.ParallelTools),
	}
	if cfg.Agent.ToolTimeoutSeconds > 0 {
		opts = append(opts, parley.WithToolTimeout(time.Duration(cfg.Agent.ToolTimeoutSeconds)*time.Second))
	}
	if debug {
		opts = append(opts, parley.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("observer: %w", err)
		}
		defer shutdown(context.Background())
		opts = append(opts, parley.WithTracer(observer.NewTracer()))
		model = observer.WrapModel(model, inst)
	}

	agent := parley.NewReActAgent(cfg.Agent.Name, model, opts...)
	session := parley.NewJSONSession(cfg.Session.Dir)

	fmt.Printf("parley %s — %s/%s. Type a message, or /help for commands.\n",
		version, cfg.LLM.Provider, cfg.LLM.Model)
	return repl(ctx, agent, session, debug)
}

// buildToolkit assembles the built-in tools the config enables.
func buildToolkit(cfg config.Config) (*parley.Toolkit, error) {
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	kit := parley.NewToolkit(file.New(cfg.Workspace.Path).Tools()...)
	kit.Register(web.New(nil))
	kit.Register(pdf.New(cfg.Workspace.Path))

	if cfg.Workspace.DocsDir != "" {
		docsTool, err := docs.New(cfg.Workspace.DocsDir)
		if err != nil {
			return nil, err
		}
		kit.Register(docsTool)
	}

	if cfg.Code.Enabled {
		runner, err := buildRunner(cfg.Code)
		if err != nil {
			return nil, err
		}
		kit.Register(toolscode.New(runner))
	}

	return kit, nil
}

func buildRunner(cfg config.CodeConfig) (code.Runner, error) {
	var opts []code.Option
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, code.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	switch cfg.Runner {
	case "subprocess":
		return code.NewSubprocess(opts...), nil
	case "docker":
		if cfg.Image != "" {
			opts = append(opts, code.WithImage(cfg.Image))
		}
		return code.NewContainer(opts...)
	default:
		return nil, fmt.Errorf("unknown code runner %q", cfg.Runner)
	}
}

// repl reads lines from stdin and streams replies until EOF, /quit, or an
// interrupt.
func repl(ctx context.Context, agent *parley.ReActAgent, session parley.Session, debug bool) error {
	modules := map[string]parley.StateModule{"agent": agent}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	for {
		if ctx.Err() != nil {
			fmt.Println()
			return nil
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := command(ctx, line, agent, session, modules)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}

		stream := agent.Stream(ctx, parley.TextMsg("user", parley.RoleUser, line))
		render(stream, debug)
	}
}

const helpText = `Commands:
  /save [id]   save the conversation (default id "default")
  /load [id]   restore a saved conversation
  /sessions    list saved sessions
  /clear       forget the conversation
  /tools       list available tools
  /quit        exit
`

// command handles one slash command. quit reports that the REPL should end.
func command(ctx context.Context, line string, agent *parley.ReActAgent, session parley.Session, modules map[string]parley.StateModule) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/help":
		fmt.Print(helpText)
	case "/save":
		if arg == "" {
			arg = "default"
		}
		if err := session.Save(ctx, arg, modules); err != nil {
			return false, err
		}
		fmt.Printf("saved session %q\n", arg)
	case "/load":
		if arg == "" {
			arg = "default"
		}
		if err := session.Load(ctx, arg, false, modules); err != nil {
			return false, err
		}
		fmt.Printf("loaded session %q (%d messages)\n", arg, agent.Memory().Size())
	case "/sessions":
		ids, err := session.List(ctx)
		if err != nil {
			return false, err
		}
		if len(ids) == 0 {
			fmt.Println("no saved sessions")
			break
		}
		for _, id := range ids {
			fmt.Println(" ", id)
		}
	case "/clear":
		agent.Memory().Clear()
		fmt.Println("conversation cleared")
	case "/tools":
		for _, n := range agent.Toolkit().Names() {
			fmt.Println(" ", n)
		}
	case "/quit", "/exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// render prints a reply stream: assistant text as it arrives, tool activity
// on its own lines, thinking only in debug mode.
func render(stream *parley.ReplyStream, debug bool) {
	midText := false
	for msg, ok := stream.Next(); ok; msg, ok = stream.Next() {
		switch b := msg.Content.(type) {
		case *parley.TextBlock:
			fmt.Print(b.Text)
			midText = true
		case *parley.ThinkingBlock:
			if debug {
				fmt.Fprint(os.Stderr, b.Text)
			}
		case *parley.ToolUseBlock:
			if midText {
				fmt.Println()
				midText = false
			}
			fmt.Printf("[tool] %s %s\n", b.Name, compactJSON(b.Input))
		case *parley.ToolResultBlock:
			fmt.Printf("[tool] %s -> %s\n", b.Name, firstLine(resultText(b)))
		}
	}
	if midText {
		fmt.Println()
	}
	if err := stream.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}

func resultText(b *parley.ToolResultBlock) string {
	if tb, ok := b.Output.(*parley.TextBlock); ok {
		return tb.Text
	}
	return ""
}

// firstLine compresses a tool result to one short display line.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if r := []rune(s); len(r) > 120 {
		s = string(r[:120]) + "..."
	}
	return s
}

func compactJSON(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{...}"
	}
	return firstLine(string(data))
}
