// ABOUTME: Interactive config wizard for the bridge
// ABOUTME: Prompts for the essentials and writes a TOML config file

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/botline/internal/config"
)

// initAnswers holds the values collected by the wizard.
type initAnswers struct {
	Frontend         string
	DirectLineSecret string
	BotUserID        string

	TwitterToken  string
	TwitterUserID string

	MatrixHomeserver  string
	MatrixUserID      string
	MatrixAccessToken string
	MatrixRooms       []string

	CacheTTL     string
	DatabasePath string
	HTTPAddr     string
	LogLevel     string
	LogFormat    string
}

func runInit() error {
	return runInitWith(os.Stdin, config.DefaultPath(), config.DefaultDatabasePath())
}

func runInitWith(in io.Reader, defaultConfigPath, defaultDBPath string) error {
	reader := bufio.NewReader(in)

	fmt.Println("botline configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Direct Line ---")
	a.DirectLineSecret = prompt(reader, "Direct Line secret", "${DIRECTLINE_SECRET}")
	a.BotUserID = prompt(reader, "Bridge user id", config.DefaultBotUserName)

	fmt.Println("\n--- Frontend ---")
	a.Frontend = prompt(reader, "Frontend (twitter/matrix)", config.FrontendTwitter)
	switch a.Frontend {
	case config.FrontendTwitter:
		a.TwitterToken = prompt(reader, "Twitter user access token", "${TWITTER_BEARER_TOKEN}")
		a.TwitterUserID = prompt(reader, "Twitter account id of the bot", "")
	case config.FrontendMatrix:
		a.MatrixHomeserver = prompt(reader, "Matrix homeserver URL", "https://matrix.org")
		a.MatrixUserID = prompt(reader, "Matrix user id", "@botline:matrix.org")
		a.MatrixAccessToken = prompt(reader, "Matrix access token", "${MATRIX_ACCESS_TOKEN}")
		rooms := prompt(reader, "Allowed rooms, comma separated (empty allows all)", "")
		for _, room := range strings.Split(rooms, ",") {
			if room = strings.TrimSpace(room); room != "" {
				a.MatrixRooms = append(a.MatrixRooms, room)
			}
		}
	default:
		return fmt.Errorf("unknown frontend %q", a.Frontend)
	}

	fmt.Println("\n--- Bridge ---")
	a.CacheTTL = prompt(reader, "Correlation TTL", config.DefaultCacheTTL.String())
	a.DatabasePath = prompt(reader, "Ledger database path (empty disables)", defaultDBPath)
	a.HTTPAddr = prompt(reader, "Status HTTP address (empty disables)", "localhost:8080")

	fmt.Println("\n--- Logging ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	content := buildConfig(a)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold secrets.
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DatabasePath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	fmt.Println("\nTo start the bridge:")
	fmt.Println("  botline serve")
	return nil
}

// buildConfig renders the wizard answers as TOML.
func buildConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# botline configuration\n")
	b.WriteString("# Generated by botline init\n\n")

	fmt.Fprintf(&b, "frontend = %q\n\n", a.Frontend)

	b.WriteString("[directline]\n")
	fmt.Fprintf(&b, "secret = %q\n", a.DirectLineSecret)
	fmt.Fprintf(&b, "bot_user_id = %q\n", a.BotUserID)
	fmt.Fprintf(&b, "poll_interval = %q\n\n", config.DefaultDirectLinePoll.String())

	switch a.Frontend {
	case config.FrontendTwitter:
		b.WriteString("[twitter]\n")
		fmt.Fprintf(&b, "bearer_token = %q\n", a.TwitterToken)
		fmt.Fprintf(&b, "user_id = %q\n", a.TwitterUserID)
		fmt.Fprintf(&b, "poll_interval = %q\n\n", config.DefaultTwitterPoll.String())
	case config.FrontendMatrix:
		b.WriteString("[matrix]\n")
		fmt.Fprintf(&b, "homeserver = %q\n", a.MatrixHomeserver)
		fmt.Fprintf(&b, "user_id = %q\n", a.MatrixUserID)
		fmt.Fprintf(&b, "access_token = %q\n", a.MatrixAccessToken)
		quoted := make([]string, len(a.MatrixRooms))
		for i, room := range a.MatrixRooms {
			quoted[i] = fmt.Sprintf("%q", room)
		}
		fmt.Fprintf(&b, "allowed_rooms = [%s]\n\n", strings.Join(quoted, ", "))
	}

	b.WriteString("[bridge]\n")
	fmt.Fprintf(&b, "cache_ttl = %q\n", a.CacheTTL)
	fmt.Fprintf(&b, "retry_interval = %q\n\n", config.DefaultRetryInterval.String())

	b.WriteString("[database]\n")
	fmt.Fprintf(&b, "path = %q\n\n", a.DatabasePath)

	b.WriteString("[server]\n")
	fmt.Fprintf(&b, "http_addr = %q\n\n", a.HTTPAddr)

	b.WriteString("[logging]\n")
	fmt.Fprintf(&b, "level = %q\n", a.LogLevel)
	fmt.Fprintf(&b, "format = %q\n\n", a.LogFormat)

	b.WriteString("[metrics]\n")
	b.WriteString("enabled = false\n")
	b.WriteString("otlp_endpoint = \"http://localhost:4318/v1/metrics\"\n")

	return b.String()
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
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
		if input = strings.TrimSpace(input); input != "" {
			return input
		}
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
