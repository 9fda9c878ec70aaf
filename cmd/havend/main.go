// ABOUTME: Entry point for the havend location-sharing daemon
// ABOUTME: Wires the store, preference storage, tracking, presence, and HTTP API

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/haven-app/havend/internal/api"
	"github.com/haven-app/havend/internal/config"
	"github.com/haven-app/havend/internal/coordinator"
	"github.com/haven-app/havend/internal/identity"
	"github.com/haven-app/havend/internal/permission"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/prefs"
	"github.com/haven-app/havend/internal/presence"
	"github.com/haven-app/havend/internal/publish"
	"github.com/haven-app/havend/internal/store"
	"github.com/haven-app/havend/internal/tracking"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                               _
| |__   __ ___   _____ _ __   __| |
| '_ \ / _' \ \ / / _ \ '_ \ / _' |
| | | | (_| |\ V /  __/ | | | (_| |
|_| |_|\__,_| \_/ \___|_| |_|\__,_|
`

// getConfigPath returns the path to the havend config file.
// Priority: HAVEND_CONFIG env var > XDG_CONFIG_HOME/havend/config.yaml > ~/.config/havend/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HAVEND_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "havend", "config.yaml")
}

// getDataPath returns the path to the havend data directory.
// Priority: XDG_DATA_HOME/havend > ~/.local/share/havend
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "havend")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: havend <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the location daemon")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check daemon health")
		fmt.Println("  status   Show online and tracking state")
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
	case "status":
		err = runStatus(ctx)
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

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Redis.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Redis:     %s\n", cfg.Redis.Addr)
	}
	fmt.Println()

	logger.Info("starting havend",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Location store
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening location store: %w", err)
	}
	defer st.Close()

	// Preference store
	var pf prefs.Store
	if cfg.Redis.Enabled {
		pf, err = prefs.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("opening preference store: %w", err)
		}
	} else {
		logger.Warn("redis disabled, preferences will not survive restarts")
		pf = prefs.NewMemoryStore()
	}
	defer pf.Close()

	// Identity
	var id identity.Provider
	if cfg.Identity.TokenFile != "" {
		id = identity.NewTokenFileProvider(cfg.Identity.TokenFile, []byte(cfg.Identity.JWTSecret))
	} else {
		id = identity.NewStaticProvider(cfg.Identity.UserID)
	}

	// Position source, permission gate, publisher, presence
	source := position.NewPushSource()
	gate := permission.NewGate(permission.StaticPrompter{
		Foreground: cfg.Permissions.Foreground,
		Background: cfg.Permissions.Background,
	})
	publisher := publish.NewPublisher(st, id, source)
	pres := presence.NewSync(st, nil)

	coord, err := coordinator.New(ctx, source, gate, publisher, pres, pf, id,
		&logNotifier{logger: logger},
		tracking.Options{
			Interval:          cfg.Tracking.Interval,
			Distance:          cfg.Tracking.Distance,
			DisableBackground: cfg.Tracking.DisableBackground,
			NotificationTitle: cfg.Tracking.NotificationTitle,
			NotificationBody:  cfg.Tracking.NotificationBody,
		})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	defer coord.Close()

	if len(cfg.Circles) > 0 {
		if err := coord.SetCircles(ctx, cfg.Circles); err != nil {
			logger.Error("applying seed circles", "error", err)
		}
	}

	// HTTP API
	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: api.NewServer(coord, source).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	return nil
}

// logNotifier satisfies the tracking indicator requirement in a headless
// process by logging instead of posting a notification.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) Show(title, body string) {
	n.logger.Info("background sharing indicator shown", "title", title, "body", body)
}

func (n *logNotifier) Hide() {
	n.logger.Info("background sharing indicator hidden")
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
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

func runStatus(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/status", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("havend configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "havend.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Redis
	fmt.Println("\n--- Redis Configuration ---")
	enableRedis := prompt(reader, "Enable Redis preference storage?", "no")
	redisEnabled := strings.ToLower(enableRedis) == "yes" || strings.ToLower(enableRedis) == "y"
	var redisAddr string
	if redisEnabled {
		redisAddr = prompt(reader, "Redis address", "localhost:6379")
	}

	// Identity
	fmt.Println("\n--- Identity Configuration ---")
	userID := prompt(reader, "User id", "")
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	// Tracking
	fmt.Println("\n--- Tracking Configuration ---")
	interval := prompt(reader, "Sampling interval", "10s")
	distance := prompt(reader, "Distance threshold (meters)", "10")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# havend configuration\n")
	cfg.WriteString("# Generated by havend init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("redis:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", redisEnabled))
	if redisEnabled {
		cfg.WriteString(fmt.Sprintf("  addr: \"%s\"\n", redisAddr))
	}
	cfg.WriteString("\n")

	cfg.WriteString("identity:\n")
	cfg.WriteString(fmt.Sprintf("  user_id: \"%s\"\n", userID))
	cfg.WriteString("\n")

	cfg.WriteString("tracking:\n")
	cfg.WriteString(fmt.Sprintf("  interval: \"%s\"\n", interval))
	cfg.WriteString(fmt.Sprintf("  distance: %s\n", distance))
	cfg.WriteString("\n")

	cfg.WriteString("permissions:\n")
	cfg.WriteString("  foreground: true\n")
	cfg.WriteString("  background: true\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the daemon:")
	fmt.Printf("  havend serve\n")

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
