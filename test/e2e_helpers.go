//go:build e2e

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"

	"wash-sync/internal/config"
)

const (
	reservationsEndpoint = "/api/v1/reservations"
	carwashesEndpoint    = "/api/v1/carwashes"
	streamEndpoint       = "/ws/reservations/stream"
	meEndpoint           = "/api/v1/me"

	// Tokens are minted directly: auth lives in the main backend, this
	// subsystem only verifies.
	e2eJWTSecret = "test-e2e-secret-with-32-plus-characters-for-hs256-validation"

	msgFailedToCloseResponseBody = "failed to close response body: %v"
)

// limitedWriter wraps an io.Writer and limits the amount of data written
type limitedWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.limit {
		// Still drain the data so the pipe can't fill, but signal "written"
		lw.n += int64(len(p))
		return 0, io.ErrShortWrite
	}

	want := len(p)
	if remain := lw.limit - lw.n; int64(want) > remain {
		p = p[:remain]
	}

	n, err := lw.w.Write(p)
	lw.n += int64(n)
	if int64(want) > int64(n) && err == nil {
		err = io.ErrShortWrite
	}
	return n, err
}

// TestEnvironment holds the test infrastructure
type TestEnvironment struct {
	MongoContainer testcontainers.Container
	ServerCmd      *exec.Cmd
	ServerCancel   context.CancelFunc
	BaseURL        string
	Client         *http.Client
}

// mintToken signs an HS256 access token the way the main backend does.
func mintToken(t *testing.T, userID bson.ObjectID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.Hex(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e2eJWTSecret))
	require.NoError(t, err)
	return signed
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// startMongoTC returns a single-node replica set MongoDB testcontainer with
// (uri, terminateFn, error). Change streams need a replica set, so a plain
// stand-alone mongod is not enough here.
func startMongoTC(ctx context.Context, t *testing.T) (string, func(), error) {
	t.Helper()
	t.Log("Starting MongoDB replica set container")
	mongoC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:8.0",
			ExposedPorts: []string{"27017/tcp"},
			Cmd:          []string{"--replSet", "rs0", "--bind_ip_all"},
			WaitingFor: wait.ForExec([]string{"mongosh", "--eval", "db.adminCommand('ping')"}).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, err
	}

	terminateFn := func() {
		_ = mongoC.Terminate(ctx)
	}

	// Initiate the replica set, then wait until the node reports PRIMARY.
	code, _, err := mongoC.Exec(ctx, []string{"mongosh", "--quiet", "--eval", "try { rs.status() } catch (e) { rs.initiate() }"})
	if err != nil || code != 0 {
		terminateFn()
		return "", nil, fmt.Errorf("rs.initiate failed (exit=%d): %w", code, err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		code, _, err = mongoC.Exec(ctx, []string{"mongosh", "--quiet", "--eval", "if (!db.hello().isWritablePrimary) { quit(1) }"})
		if err == nil && code == 0 {
			break
		}
		if time.Now().After(deadline) {
			terminateFn()
			return "", nil, fmt.Errorf("replica set never elected a primary")
		}
		time.Sleep(500 * time.Millisecond)
	}

	host, err := mongoC.Host(ctx)
	if err != nil {
		terminateFn()
		return "", nil, err
	}

	port, err := mongoC.MappedPort(ctx, "27017")
	if err != nil {
		terminateFn()
		return "", nil, err
	}

	mongoURI := fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port())
	return mongoURI, terminateFn, nil
}

// startServerWithEnv starts the application server with custom environment variables
func startServerWithEnv(ctx context.Context, t *testing.T, mongoURI string, extraEnv map[string]string) (string, *exec.Cmd, context.CancelFunc, *bytes.Buffer, error) {
	t.Helper()
	t.Log("Starting server")

	appPort, err := randomPort()
	if err != nil {
		return "", nil, nil, nil, err
	}

	// prepare /dev/null for stdout
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return "", nil, nil, nil, err
	}
	t.Cleanup(func() { _ = devNull.Close() })

	// Capture stderr for debugging with size limit
	const maxStderrSize = 64 * 1024 // 64KB max
	stderrBuf := &bytes.Buffer{}
	limitedStderr := &limitedWriter{w: stderrBuf, limit: maxStderrSize}

	srvCtx, srvCancel := context.WithCancel(ctx)

	bin := os.Getenv("BIN_SERVER")
	var cmd *exec.Cmd
	if bin != "" {
		// already compiled once in the workflow
		cmd = exec.CommandContext(srvCtx, bin)
	} else {
		// local `go test` fallback
		cmd = exec.CommandContext(srvCtx, "go", "run", "./cmd/server")
		cmd.Dir = "../"
	}

	// Make the wrapper the leader of a new process group
	// so that we can later send a signal to the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	envVars := []string{
		fmt.Sprintf("MONGO_URI=%s", mongoURI),
		"MONGO_DB_NAME=e2e",
		fmt.Sprintf("JWT_SECRET=%s", e2eJWTSecret),
		"LOG_LEVEL=info", // reduce log noise
		fmt.Sprintf("APP_PORT=%s", appPort),
	}

	// Add extra environment variables
	for key, value := range extraEnv {
		envVars = append(envVars, fmt.Sprintf("%s=%s", key, value))
	}

	cmd.Env = append(envVars, os.Environ()...)
	cmd.Stdout = devNull // no extra goroutines, no console spam
	cmd.Stderr = limitedStderr

	t.Logf("Launching server on :%s (binary=%q)", appPort, bin)
	if err := cmd.Start(); err != nil {
		srvCancel()
		return "", nil, nil, nil, err
	}

	baseURL := fmt.Sprintf("http://localhost:%s", appPort)
	return baseURL, cmd, srvCancel, stderrBuf, nil
}

// waitHealthy waits for the server to respond to health checks
func waitHealthy(baseURL string, timeout time.Duration) error {
	healthURL := fmt.Sprintf("%s/healthz", baseURL)
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().UTC().Add(timeout)
	for {
		if time.Now().UTC().After(deadline) {
			return fmt.Errorf("server never responded on %s", healthURL)
		}

		resp, err := client.Get(healthURL)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// httpJSON performs a JSON request and returns the raw response.
func httpJSON(method, url string, body any, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

// makeHTTPRequest is a helper function to make HTTP requests with proper cleanup
func makeHTTPRequest(t *testing.T, method, url string, payload map[string]any, headers map[string]string, expectedStatus int) map[string]any {
	t.Helper()
	resp, err := httpJSON(method, url, payload, headers)
	require.NoError(t, err)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Errorf(msgFailedToCloseResponseBody, err)
		}
	}()

	require.Equal(t, expectedStatus, resp.StatusCode)

	var result map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	}

	return result
}

// SetupTestEnvironment sets up the complete test environment
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	return SetupTestEnvironmentWithEnv(t, nil)
}

// SetupTestEnvironmentWithEnv sets up the complete test environment with custom environment variables
func SetupTestEnvironmentWithEnv(t *testing.T, extraEnv map[string]string) *TestEnvironment {
	t.Helper()
	t.Log("Setting up test environment")
	config.ResetCache()
	for k, v := range extraEnv {
		t.Setenv(k, v)
	}

	t.Cleanup(func() {
		config.ResetCache() // paranoia: wipe again when test ends
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	mongoURI, mongoTerminate, err := startMongoTC(ctx, t)
	require.NoError(t, err)
	t.Cleanup(mongoTerminate)

	baseURL, cmd, srvCancel, stderrBuf, err := startServerWithEnv(ctx, t, mongoURI, extraEnv)
	require.NoError(t, err)

	// Set environment variables for the test process to access MongoDB
	t.Setenv("MONGO_URI", mongoURI)
	t.Setenv("MONGO_DB_NAME", "e2e")

	t.Cleanup(func() {
		srvCancel() // cancels the context (still keep it)

		// Best-effort: kill the entire process group (-pgid)
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}

		done := make(chan struct{})
		go func() {
			_ = cmd.Wait() // waits for pipes to drain
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			<-done
		}

		// Dump stderr on cleanup if there's content
		if stderrBuf.Len() > 0 {
			t.Logf("Server stderr output (%d bytes):\n%s", stderrBuf.Len(), stderrBuf.String())
		}
	})

	if err := waitHealthy(baseURL, 30*time.Second); err != nil {
		// Dump stderr on health check failure
		if stderrBuf != nil && stderrBuf.Len() > 0 {
			t.Logf("Server stderr output on health check failure (%d bytes):\n%s", stderrBuf.Len(), stderrBuf.String())
		}
		require.NoError(t, err, "server never responded on %s", baseURL)
	}

	return &TestEnvironment{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}
