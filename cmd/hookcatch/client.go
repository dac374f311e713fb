package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rsclarke/hookcatch/internal/client"
)

type clientConfig struct {
	apiKey string
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiKey, "api-key", os.Getenv("HOOKCATCH_API_KEY"), "API key for authentication")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", envOr("HOOKCATCH_API_URL", "http://localhost:8081"), "dashboard API URL")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or HOOKCATCH_API_URL env var)")
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("API key required (use --api-key flag or HOOKCATCH_API_KEY env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiKey), nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

var (
	methodGet    = color.New(color.FgGreen, color.Bold).SprintFunc()
	methodPost   = color.New(color.FgYellow, color.Bold).SprintFunc()
	methodPut    = color.New(color.FgBlue, color.Bold).SprintFunc()
	methodDelete = color.New(color.FgRed, color.Bold).SprintFunc()
	methodOther  = color.New(color.FgMagenta, color.Bold).SprintFunc()
	dim          = color.New(color.Faint).SprintFunc()
)

// colorMethod pads method to width before colouring so columns line up.
func colorMethod(method string, width int) string {
	padded := fmt.Sprintf("%-*s", width, method)
	switch method {
	case "GET", "HEAD":
		return methodGet(padded)
	case "POST":
		return methodPost(padded)
	case "PUT", "PATCH":
		return methodPut(padded)
	case "DELETE":
		return methodDelete(padded)
	default:
		return methodOther(padded)
	}
}
