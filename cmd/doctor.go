package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinychat-dev/tinychat/internal/config"
	"github.com/tinychat-dev/tinychat/internal/sandbox"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tinychat doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Upstream API
	fmt.Println()
	fmt.Println("  Upstream API:")
	fmt.Printf("    %-12s %s\n", "Base URL:", cfg.API.BaseURL)
	checkKey("API key", cfg.API.Key)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.API.DefaultModel)
	fmt.Printf("    %-12s %d configured\n", "Models:", len(cfg.API.AvailableModels))

	// RLM
	fmt.Println()
	fmt.Println("  RLM:")
	if cfg.RLM.Enabled {
		passcode := "open access"
		if cfg.RLM.Passcode != "" {
			passcode = "passcode required"
		}
		fmt.Printf("    %-12s enabled (%s)\n", "Status:", passcode)
		fmt.Printf("    %-12s %d iterations, %ds timeout, %d concurrent\n",
			"Budget:", cfg.RLM.MaxIterations, cfg.RLM.TimeoutSeconds, cfg.RLM.MaxConcurrent)
		checkREPL()
	} else {
		fmt.Printf("    %-12s disabled\n", "Status:")
	}

	// Chat log
	fmt.Println()
	fmt.Println("  Chat log:")
	switch {
	case cfg.Log.ChatLog == "":
		fmt.Printf("    %-12s disabled\n", "Sink:")
	case strings.HasPrefix(cfg.Log.ChatLog, "sqlite:"):
		fmt.Printf("    %-12s sqlite (%s)\n", "Sink:", strings.TrimPrefix(cfg.Log.ChatLog, "sqlite:"))
	case strings.HasPrefix(cfg.Log.ChatLog, "postgres://"), strings.HasPrefix(cfg.Log.ChatLog, "postgresql://"):
		fmt.Printf("    %-12s postgres\n", "Sink:")
	default:
		fmt.Printf("    %-12s jsonl (%s)\n", "Sink:", cfg.Log.ChatLog)
	}

	// Image generation
	fmt.Println()
	fmt.Println("  Images:")
	switch cfg.Image.Provider {
	case "swarmui":
		fmt.Printf("    %-12s swarmui (%s)\n", "Provider:", cfg.Image.SwarmUI.BaseURL)
	case "openai":
		fmt.Printf("    %-12s openai (%s)\n", "Provider:", cfg.Image.OpenAI.Model)
		checkKey("Image key", cfg.Image.OpenAI.Key)
	default:
		fmt.Printf("    %-12s (not configured)\n", "Provider:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkKey(name, key string) {
	if len(key) >= 8 {
		masked := key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
		fmt.Printf("    %-12s %s\n", name+":", masked)
	} else if key != "" {
		fmt.Printf("    %-12s (set)\n", name+":")
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func checkREPL() {
	repl := sandbox.NewREPL()
	res := repl.Execute(context.Background(), "print(6 * 7)")
	if res.Stderr != "" || strings.TrimSpace(res.Stdout) != "42" {
		fmt.Printf("    %-12s FAILED (%s)\n", "JS REPL:", res.Stderr)
	} else {
		fmt.Printf("    %-12s OK\n", "JS REPL:")
	}
}
