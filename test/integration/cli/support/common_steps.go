package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// substituteCommandVariables expands {tmp} and {image:name} placeholders.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
	for name, path := range testCtx.Images {
		command = strings.ReplaceAll(command, "{image:"+name+"}", path)
	}
	return command
}

// iRunCommand runs a CLI command in the scenario's temp directory.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	// the temp dir keeps a developer's fabricarea.yaml out of the run
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	output, err := cmd.CombinedOutput()
	testCtx.LastOutput = string(output)
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain checks the combined output.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain %q\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theFileShouldExist checks for an output artifact.
func (testCtx *TestContext) theFileShouldExist(name string) error {
	path := testCtx.substituteCommandVariables(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("expected file %s: %w", path, err)
	}
	return nil
}

// jsonOutput extracts the first JSON object from the command output. Log
// lines go to stderr, so the object starts at the first '{' line.
func (testCtx *TestContext) jsonOutput() (map[string]any, error) {
	return decodeJSONObject(testCtx.LastOutput)
}

func decodeJSONObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{\n")
	if start < 0 {
		start = strings.Index(text, "{")
	}
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in output: %s", text)
	}
	var data map[string]any
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, text)
	}
	return data, nil
}

// lookupNumber reads a dotted path of object fields as a number.
func lookupNumber(data map[string]any, field string) (float64, error) {
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("field %s: %q is not an object", field, part)
		}
		cur, ok = obj[part]
		if !ok {
			return 0, fmt.Errorf("field %s not found", field)
		}
	}
	n, ok := cur.(float64)
	if !ok {
		return 0, fmt.Errorf("field %s is %T, not a number", field, cur)
	}
	return n, nil
}

func approxEqual(field string, got float64, want, tol string) error {
	w, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return err
	}
	d := 1e-6
	if tol != "" {
		if d, err = strconv.ParseFloat(tol, 64); err != nil {
			return err
		}
	}
	if math.Abs(got-w) > d {
		return fmt.Errorf("%s = %v, want %v ± %v", field, got, w, d)
	}
	return nil
}

// theJSONFieldShouldBe compares a numeric field of the JSON output.
func (testCtx *TestContext) theJSONFieldShouldBe(field, want, tol string) error {
	data, err := testCtx.jsonOutput()
	if err != nil {
		return err
	}
	got, err := lookupNumber(data, field)
	if err != nil {
		return err
	}
	return approxEqual(field, got, want, tol)
}

// RegisterCommonSteps registers command execution steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, func(name, value string) error {
		testCtx.AddEnvVar(name, value)
		return nil
	})
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the output should be valid JSON$`, func() error {
		_, err := testCtx.jsonOutput()
		return err
	})
	sc.Step(`^the JSON field "([^"]*)" should be ([-0-9.]+)(?: within ([0-9.]+))?$`, testCtx.theJSONFieldShouldBe)
}
