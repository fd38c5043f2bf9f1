package support

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	TempDir string
	EnvVars []string

	// In-process server
	HTTPTestServer *HTTPTestServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string

	// Named photos created by the scenario
	Images map[string]string
}

// NewTestContext creates a new test context.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "fabricarea-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir:         tempDir,
		EnvVars:         []string{},
		LastHTTPHeaders: map[string]string{},
		Images:          map[string]string{},
	}, nil
}

// Cleanup stops the server and removes the scenario's temp directory.
func (testCtx *TestContext) Cleanup() error {
	var errors []error

	if testCtx.HTTPTestServer != nil {
		if err := testCtx.stopTestHTTPServer(); err != nil {
			errors = append(errors, fmt.Errorf("failed to stop server: %w", err))
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errors = append(errors, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("cleanup errors: %v", errors)
	}
	return nil
}

// AddEnvVar adds an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, fmt.Sprintf("%s=%s", name, value))
}

// TempPath returns a path inside the scenario's temp directory.
func (testCtx *TestContext) TempPath(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}
