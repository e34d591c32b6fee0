// ABOUTME: Entry point for the soap-gateway server
// ABOUTME: Bridges SOAP endpoints and the asynchronous exchange fabric

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/soap-gateway/internal/auth"
	"github.com/2389/soap-gateway/internal/config"
	"github.com/2389/soap-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                 _
  ___  ___   __ _ _ __         __ _  __ _| |_ _____      ____ _ _   _
 / __|/ _ \ / _' | '_ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 \__ \ (_) | (_| | |_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |___/\___/ \__,_| .__/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                 |_|          |___/                             |___/
`

func usage() {
	fmt.Println("Usage: soap-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the gateway")
	fmt.Println("  init                   Write a sample config file")
	fmt.Println("  health                 Check gateway readiness")
	fmt.Println("  token --sub NAME       Mint a bearer token for the SOAP endpoint")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "health":
		err = runHealth(ctx, args)
	case "token":
		err = runToken(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// optionFlags collects repeated -opt key=value flags.
type optionFlags map[string]string

func (o optionFlags) String() string {
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o optionFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("option %q is not key=value", s)
	}
	o[key] = value
	return nil
}

// loadConfig loads the file named by -config, the default search path, or,
// when -opt flags are given, builds the config from flat options.
func loadConfig(configPath string, opts optionFlags) (*config.Config, string, error) {
	if len(opts) > 0 {
		cfg, err := config.ParseOptions(opts)
		if err != nil {
			return nil, "", fmt.Errorf("parsing options: %w", err)
		}
		return cfg, "(options)", nil
	}

	if configPath == "" {
		found, err := config.Find()
		if errors.Is(err, config.ErrNoConfig) {
			return nil, "", errors.New("no config file found; run `soap-gateway init` or pass -config")
		}
		if err != nil {
			return nil, "", err
		}
		configPath = found
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file (default: search SOAP_GATEWAY_CONFIG, XDG, ~/.config)")
	opts := optionFlags{}
	fs.Var(opts, "opt", "Gateway option key=value, repeatable (replaces the config file)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, source, err := loadConfig(*configPath, opts)
	if err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	if cfg.Inbound.Enabled() {
		green.Print("    ▶ ")
		fmt.Printf("Inbound:   %s ", cfg.Inbound.LocalService)
		gray.Printf("(%s, port %d)\n", cfg.Inbound.WSDLLocation, cfg.Inbound.Port)
	}
	if cfg.Outbound.Enabled() {
		green.Print("    ▶ ")
		fmt.Printf("Outbound:  %s ", cfg.Outbound.ServiceName)
		gray.Printf("(%s)\n", cfg.Outbound.RemoteWSDL)
	}
	green.Print("    ▶ ")
	fmt.Printf("Admin:     %s\n", cfg.Server.HTTPAddr)
	if cfg.Fabric.NATS.URL != "" {
		green.Print("    ▶ ")
		fmt.Printf("NATS:      %s\n", cfg.Fabric.NATS.URL)
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! SOAP endpoint is unauthenticated")
	}
	fmt.Println()

	logger.Info("starting soap-gateway",
		"config", source,
		"wait_timeout", cfg.Inbound.WaitTimeout,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath, nil)
	if err != nil {
		return err
	}

	// Make HTTP request to ready endpoint with context
	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// runToken mints a bearer token signed with the configured jwt secret.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file")
	sub := fs.String("sub", "", "Token subject (default: random id)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	services := fs.String("services", "", "Comma-separated services the token may call (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := os.Getenv("SOAP_GATEWAY_JWT_SECRET")
	if secret == "" {
		cfg, _, err := loadConfig(*configPath, nil)
		if err != nil {
			return err
		}
		secret = cfg.Auth.JWTSecret
	}
	if secret == "" {
		return errors.New("no jwt secret: set auth.jwt_secret or SOAP_GATEWAY_JWT_SECRET")
	}

	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return err
	}

	subject := *sub
	if subject == "" {
		subject = uuid.New().String()
	}

	token, err := verifier.Generate(subject, *ttl, splitList(*services)...)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "subject: %s, expires: %s\n", subject, time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runInit writes the sample configuration with a freshly generated jwt secret.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	output := fs.String("o", "", "Output path (default: ~/.config/soap-gateway/gateway.yaml)")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *output
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s exists (use -force to overwrite)", path)
	}

	content, err := sampleConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	fmt.Println("\nSet inbound.wsdl_location (or SOAP_GATEWAY_WSDL), then start the server:")
	fmt.Println("  soap-gateway serve")
	return nil
}

// sampleConfig returns config.Sample with a random jwt secret filled in.
func sampleConfig() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)
	return strings.Replace(config.Sample, "${SOAP_GATEWAY_JWT_SECRET}", secret, 1), nil
}
