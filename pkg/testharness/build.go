// Package testharness builds the real codorch binary and its fakecodex
// test double on demand, so integration tests can drive a real subprocess
// tree (tmux/pty session -> launch script -> fakecodex) instead of
// asserting against in-process mocks.
package testharness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// BuildBinaries compiles the codorch and fakecodex binaries into outputDir.
// Returns the absolute paths to the compiled binaries.
func BuildBinaries(ctx context.Context, projectRoot, outputDir string) (string, string, error) {
	if projectRoot == "" {
		return "", "", fmt.Errorf("project root is required")
	}
	if outputDir == "" {
		return "", "", fmt.Errorf("output directory is required")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	codorchPath := filepath.Join(outputDir, "codorch")
	fakecodexPath := filepath.Join(outputDir, "fakecodex")

	if err := runGoBuild(ctx, projectRoot, codorchPath, "./cmd/codorch"); err != nil {
		return "", "", err
	}
	if err := runGoBuild(ctx, projectRoot, fakecodexPath, "./cmd/fakecodex"); err != nil {
		return "", "", err
	}

	return codorchPath, fakecodexPath, nil
}

func runGoBuild(ctx context.Context, projectRoot, outputPath, pkg string) error {
	cmd := exec.CommandContext(ctx, "go", "build", "-trimpath", "-o", outputPath, pkg)
	cmd.Dir = projectRoot

	env := os.Environ()
	env = setEnv(env, "CGO_ENABLED", "0")
	env = setEnv(env, "GOFLAGS", "-trimpath")
	cmd.Env = env

	combined, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go build %s failed: %w\n%s", pkg, err, string(combined))
	}
	return nil
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
