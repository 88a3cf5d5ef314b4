package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cryptofs/cryptfs/internal/config"
	"github.com/cryptofs/cryptfs/internal/cryptofs"
)

// passwordEnvVar is read in non-interactive mode (spec.md §6's
// "CRYPTOFS_PASSWORD env in non-interactive mode").
const passwordEnvVar = "CRYPTOFS_PASSWORD"

// envOrPromptPassword resolves the mount password from $CRYPTOFS_PASSWORD
// if set, else prompts once on stdin. It does not suppress terminal echo:
// this CLI is deliberately thin and leaves secure prompting to whatever
// wraps it for interactive use.
type envOrPromptPassword struct{ prompt string }

func (p envOrPromptPassword) Password(ctx context.Context) (string, error) {
	if v, ok := os.LookupEnv(passwordEnvVar); ok {
		return v, nil
	}
	fmt.Fprint(os.Stderr, p.prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath, dataDir)
}

func mountForCLI(ctx context.Context, prompt string) (*cryptofs.Filesystem, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cryptofs.Mount(ctx, cfg, envOrPromptPassword{prompt: prompt})
}
