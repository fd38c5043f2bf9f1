package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/fabricarea/internal/pipeline"
	"github.com/MeKo-Tech/fabricarea/internal/server"
	"github.com/MeKo-Tech/fabricarea/internal/vision"
)

// HTTPTestServerWrapper wraps an in-process measurement server.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// theServerIsRunning starts the server with overlays on and a lowered
// minimum piece size so small synthetic photos qualify.
func (testCtx *TestContext) theServerIsRunning() error {
	h := vision.Open(context.Background(), vision.Native)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		return err
	}

	s, err := server.NewServer(server.Config{
		Host:           "localhost",
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     30,
		Pipeline:       pipeline.NewBuilder().WithAreaFractions(0.02, 0).Config(),
		OverlayEnabled: true,
	}, h)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: s,
	}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() error {
	w := testCtx.HTTPTestServer
	testCtx.HTTPTestServer = nil
	w.Server.Close()
	return w.TestServer.Close()
}

func (testCtx *TestContext) baseURL() (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL, nil
}

// iGET issues a GET request.
func (testCtx *TestContext) iGET(endpoint string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+endpoint, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iPOSTImageWith uploads a named photo with form fields given as
// "key=value&key=value".
func (testCtx *TestContext) iPOSTImageWith(name, endpoint, fields string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	path, ok := testCtx.Images[name]
	if !ok {
		return fmt.Errorf("unknown photo %q", name)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if fields != "" {
		for _, kv := range strings.Split(fields, "&") {
			k, v, _ := strings.Cut(kv, "=")
			if err := mw.WriteField(k, v); err != nil {
				return err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, base+endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(b)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

// theResponseStatusShouldBe checks the last HTTP status.
func (testCtx *TestContext) theResponseStatusShouldBe(expectedStatus int) error {
	if testCtx.LastHTTPStatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d\nResponse: %s",
			expectedStatus, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a numeric field of the JSON response.
func (testCtx *TestContext) theResponseFieldShouldBe(field, want, tol string) error {
	data, err := decodeJSONObject(testCtx.LastHTTPResponse)
	if err != nil {
		return err
	}
	got, err := lookupNumber(data, field)
	if err != nil {
		return err
	}
	return approxEqual(field, got, want, tol)
}

// theResponseShouldContain checks the raw response body.
func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q\nResponse: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseHeaderShouldBe checks a response header.
func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != want {
		return fmt.Errorf("header %s = %q, want %q", name, got, want)
	}
	return nil
}

// RegisterServerSteps registers HTTP server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the measurement server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)"$`, func(name, endpoint string) error {
		return testCtx.iPOSTImageWith(name, endpoint, "")
	})
	sc.Step(`^I POST the photo "([^"]*)" to "([^"]*)" with "([^"]*)"$`, testCtx.iPOSTImageWith)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should be ([-0-9.]+)(?: within ([0-9.]+))?$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
