//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/api/handlers"
	"github.com/cloo-solutions/campaignkb/internal/cli"
	"github.com/cloo-solutions/campaignkb/internal/server"
	"github.com/cloo-solutions/campaignkb/internal/storage"
	"github.com/cloo-solutions/campaignkb/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	App          *cli.App
	DataDir      string
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts postgres and RustFS, wires the knowledge base against
// them through the same environment the binary reads, and serves it.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	dataDir := t.TempDir()
	for k, v := range map[string]string{
		"CAMPAIGNKB_ENABLE_PDF_QA":        "true",
		"CAMPAIGNKB_DATA_DIR":             dataDir,
		"CAMPAIGNKB_VECTOR_BACKEND":       "postgres",
		"CAMPAIGNKB_DATABASE_URL":         pgC.ConnectionString(),
		"CAMPAIGNKB_EMBEDDINGS_PROVIDER":  "local",
		"CAMPAIGNKB_INGEST_MODE":          "replace",
		"CAMPAIGNKB_SKIP_UNCHANGED":       "true",
		"CAMPAIGNKB_S3_ENDPOINT":          s3C.Endpoint(),
		"CAMPAIGNKB_S3_ACCESS_KEY_ID":     "rustfsadmin",
		"CAMPAIGNKB_S3_SECRET_ACCESS_KEY": "rustfsadmin",
		"CAMPAIGNKB_S3_BUCKET":            "test-pdfs",
		"CAMPAIGNKB_REDIS_ADDR":           "",
	} {
		t.Setenv(k, v)
	}

	app, err := cli.LoadApp(ctx, cli.Options{Migrate: true})
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}

	storageClient, err := app.RequireStorage()
	if err != nil {
		t.Fatalf("storage not configured: %v", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, app, storageClient, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		App:          app,
		DataDir:      dataDir,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.App != nil {
		e.App.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// UploadSession writes a text PDF with the given pages and uploads it to the bucket.
func (e *E2ETestEnv) UploadSession(name string, pages ...string) {
	path := filepath.Join(e.T.TempDir(), name)
	if err := os.WriteFile(path, BuildPDF(pages...), 0o644); err != nil {
		e.T.Fatalf("failed to write %s: %v", name, err)
	}
	if _, err := e.App.Storage.Upload(e.Ctx, path); err != nil {
		e.T.Fatalf("failed to upload %s: %v", name, err)
	}
}

// BuildBinaries builds the campaignkb binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "campaignkb-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "campaignkb"), "./cmd/campaignkb")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build campaignkb: %v\n%s", err, out)
	}
}

// RunCLI runs the campaignkb binary with the environment of the test.
func (e *E2ETestEnv) RunCLI(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "campaignkb"), args...)
	cmd.Dir = e.DataDir
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body any) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, apiResp.Error, apiResp.Code)
	}

	return &apiResp, nil
}

// Answer decodes {"data":{"answer":...}}.
func Answer(resp *APIResponse) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// BuildPDF renders one Helvetica page per entry. Text is wrapped at about 60
// characters so nothing falls outside the media box.
func BuildPDF(pages ...string) []byte {
	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	catalog := add("")
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	kids := make([]string, 0, len(pages))
	for _, text := range pages {
		var content strings.Builder
		content.WriteString("BT /F1 11 Tf 14 TL 72 740 Td\n")
		for _, line := range wrap(text, 60) {
			fmt.Fprintf(&content, "(%s) Tj T*\n", escapePDF(line))
		}
		content.WriteString("ET")
		stream := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()))
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, font, stream))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objects[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objects[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalog, xref)
	return buf.Bytes()
}

func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func escapePDF(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

// startServer serves the app the way the serve command does.
func startServer(t *testing.T, app *cli.App, puller *storage.S3Client, port int) (string, func()) {
	router := server.NewRouter(server.RouterConfig{
		KBHandler: handlers.NewKBHandler(app.KB, app.Manifests, puller, handlers.KBHandlerConfig{
			IngestDir:   app.Config.IngestDir,
			DriveRawDir: app.Config.DriveRawDir,
		}),
		FeatureEnabled: app.Config.EnablePDFQA,
		Gatherer:       app.Registry,
		Metrics:        app.Metrics,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
