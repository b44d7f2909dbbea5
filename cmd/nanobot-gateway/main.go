// ABOUTME: Entry point for the nanobot gateway server
// ABOUTME: Bridges HTTP and websocket channels to a single conversational agent

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/fuutott/nanobot/internal/agent"
	"github.com/fuutott/nanobot/internal/config"
	"github.com/fuutott/nanobot/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                          _           _
 _ __   __ _ _ __   ___ | |__   ___ | |_
| '_ \ / _' | '_ \ / _ \| '_ \ / _ \| __|
| | | | (_| | | | | (_) | |_) | (_) | |_
|_| |_|\__,_|_| |_|\___/|_.__/ \___/ \__|
`

// getConfigPath returns the path to the gateway config file.
// Priority: NANOBOT_CONFIG env var > XDG_CONFIG_HOME/nanobot/gateway.yaml > ~/.config/nanobot/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("NANOBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "nanobot", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: nanobot-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	if cfg.OpenAIAPI.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("API:      %s\n", cfg.OpenAIAPI.Addr)
	}
	if cfg.WebUI.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Web UI:   %s\n", cfg.WebUI.Addr)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  %s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting nanobot-gateway",
		"config", configPath,
		"api_enabled", cfg.OpenAIAPI.Enabled,
		"webui_enabled", cfg.WebUI.Enabled,
	)

	// TODO: swap the echo responder for a model-backed one once the
	// provider layer lands.
	gw, err := gateway.New(cfg, agent.EchoResponder{}, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

var levelLabels = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG "),
	slog.LevelInfo:  color.CyanString("INF "),
	slog.LevelWarn:  color.YellowString("WRN "),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR "),
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	label, ok := levelLabels[r.Level]
	if !ok {
		label = "??? "
	}
	buf.WriteString(label)

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func writeAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteString(color.HiBlackString(" " + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &colorHandler{level: h.level, attrs: merged}
}

// WithGroup is accepted but flattened; the gateway logs no grouped attrs.
func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.OpenAIAPI.Addr
	if !cfg.OpenAIAPI.Enabled {
		if !cfg.WebUI.Enabled {
			return fmt.Errorf("no channel enabled in %s", configPath)
		}
		addr = cfg.WebUI.Addr
	}

	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("nanobot-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- OpenAI-Compatible API ---")
	apiEnabledStr := prompt(reader, "Enable API channel?", "yes")
	apiEnabled := strings.ToLower(apiEnabledStr) == "yes" || strings.ToLower(apiEnabledStr) == "y"

	var apiAddr, apiKey string
	if apiEnabled {
		apiAddr = prompt(reader, "API address", "localhost:8090")
		apiKey = prompt(reader, "API key (clients authenticate with this)", "")
		if apiKey == "" {
			return fmt.Errorf("an API key is required when the API channel is enabled")
		}
	}

	fmt.Println("\n--- Web UI ---")
	webEnabledStr := prompt(reader, "Enable web UI?", "yes")
	webEnabled := strings.ToLower(webEnabledStr) == "yes" || strings.ToLower(webEnabledStr) == "y"

	var webAddr, webUser, webPass string
	if webEnabled {
		webAddr = prompt(reader, "Web UI address", "localhost:8091")
		webUser = prompt(reader, "Web UI username (empty disables login)", "")
		if webUser != "" {
			webPass = prompt(reader, "Web UI password", "")
		}
	}

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# nanobot-gateway configuration\n")
	cfg.WriteString("# Generated by nanobot-gateway init\n\n")

	cfg.WriteString("openaiapi:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", apiEnabled))
	if apiEnabled {
		cfg.WriteString(fmt.Sprintf("  addr: %q\n", apiAddr))
		cfg.WriteString(fmt.Sprintf("  api_key: %q\n", apiKey))
		cfg.WriteString("  request_timeout: \"120s\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("webui:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", webEnabled))
	if webEnabled {
		cfg.WriteString(fmt.Sprintf("  addr: %q\n", webAddr))
		if webUser != "" {
			cfg.WriteString(fmt.Sprintf("  username: %q\n", webUser))
			cfg.WriteString(fmt.Sprintf("  password: %q\n", webPass))
		}
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  nanobot-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
