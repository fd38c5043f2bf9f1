package cli_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/fabricarea/internal/testutil"
	"github.com/MeKo-Tech/fabricarea/test/integration/cli/support"
)

// InitializeScenario gives every scenario its own context and temp dir.
func InitializeScenario(sc *godog.ScenarioContext) {
	tc, err := support.NewTestContext()
	if err != nil {
		panic(fmt.Sprintf("create test context: %v", err))
	}

	tc.RegisterCommonSteps(sc)
	tc.RegisterImageSteps(sc)
	tc.RegisterServerSteps(sc)

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		return ctx, tc.Cleanup()
	})
}

func TestFeatures(t *testing.T) {
	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "progress"
	}
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   format,
			Tags:     os.Getenv("GODOG_TAGS"),
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature suite failed")
	}
}

// TestMain builds the CLI from the current tree into a temp dir and puts
// it first on PATH, so scenarios never run a stale binary.
func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	root, err := testutil.ModuleRoot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	bin, err := os.MkdirTemp("", "fabricarea-bin-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = os.RemoveAll(bin) }()

	build := exec.CommandContext(context.Background(), "go", "build", "-o",
		filepath.Join(bin, "fabricarea"), "./cmd/fabricarea")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Fprintf(os.Stderr, "build fabricarea: %v\n%s", err, out)
		return 1
	}
	_ = os.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	return m.Run()
}
