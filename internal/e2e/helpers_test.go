package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"comfyd/internal/comfy"
	"comfyd/internal/config"
	"comfyd/internal/deliver"
	"comfyd/internal/httpapi"
	"comfyd/internal/job"
	"comfyd/internal/workflow"
)

// sampleDefinition is a minimal two-node graph: a text encoder the
// binder rewrites and a save node the engine reports outputs under.
const sampleDefinition = `{
  "3": {"class_type": "CLIPTextEncode", "inputs": {"text": "placeholder"}},
  "9": {"class_type": "SaveImage", "inputs": {"filename_prefix": "e2e"}}
}`

const mediaBytes = "fake media"

// fakeEngine imitates the inference server over real HTTP: readiness,
// prompt intake, history polling. Accepted prompts write their media
// into outputDir the way the engine does during execution. While
// blocked, history answers with no entry so jobs stay in flight.
type fakeEngine struct {
	srv       *httptest.Server
	outputDir string

	mu      sync.Mutex
	blocked bool
	prompts [][]byte
}

func newFakeEngine(t *testing.T, outputDir string) *fakeEngine {
	t.Helper()
	e := &fakeEngine{outputDir: outputDir}
	mux := http.NewServeMux()
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.prompts = append(e.prompts, body)
		e.mu.Unlock()
		if err := os.WriteFile(filepath.Join(outputDir, "out_00001_.png"), []byte(mediaBytes), 0o644); err != nil {
			t.Errorf("write engine output: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prompt_id":"e2e-prompt"}`))
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		e.mu.Lock()
		blocked := e.blocked
		e.mu.Unlock()
		if blocked {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/history/")
		rec := map[string]any{
			id: map[string]any{
				"outputs": map[string]any{
					"9": map[string]any{"images": []map[string]string{{"filename": "out_00001_.png"}}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(rec)
	})
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *fakeEngine) block() {
	e.mu.Lock()
	e.blocked = true
	e.mu.Unlock()
}

func (e *fakeEngine) unblock() {
	e.mu.Lock()
	e.blocked = false
	e.mu.Unlock()
}

func (e *fakeEngine) submissions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prompts)
}

// lastGraph decodes the most recently submitted prompt envelope.
func (e *fakeEngine) lastGraph(t *testing.T) workflow.Graph {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		t.Fatal("no prompt reached the engine")
	}
	var envelope struct {
		Prompt workflow.Graph `json:"prompt"`
	}
	if err := json.Unmarshal(e.prompts[len(e.prompts)-1], &envelope); err != nil {
		t.Fatalf("decode submitted prompt: %v", err)
	}
	return envelope.Prompt
}

// fakeStore is an S3-compatible endpoint that accepts path-style PUTs
// and retains the object bodies by request path.
type fakeStore struct {
	srv *httptest.Server

	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	s := &fakeStore{objects: map[string][]byte{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unsupported", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.objects[r.URL.Path] = body
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeStore) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

// env is a daemon assembled from its real parts wired to a fake engine
// and, optionally, a fake object store. Only the process boundaries are
// faked; everything between the HTTP surface and the engine protocol is
// production code.
type env struct {
	srv       *httptest.Server
	engine    *fakeEngine
	store     *fakeStore
	outputDir string
}

func newEnv(t *testing.T, withStore bool, queueWait time.Duration) *env {
	t.Helper()
	outputDir := t.TempDir()
	engine := newFakeEngine(t, outputDir)

	workflowsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workflowsDir, "t2v.json"), []byte(sampleDefinition), 0o644); err != nil {
		t.Fatalf("write workflow definition: %v", err)
	}
	reg, err := workflow.NewRegistry(workflowsDir)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(engine.srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split engine addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("engine port: %v", err)
	}
	sup := comfy.NewSupervisor(config.EngineConfig{
		Managed:              false,
		Host:                 host,
		Port:                 port,
		ReadyAttempts:        3,
		ReadyIntervalSeconds: 1,
		ProbeTimeoutSeconds:  1,
	}, zerolog.Nop())

	storage := config.StorageConfig{KeyPrefix: "generated"}
	var store *fakeStore
	if withStore {
		store = newFakeStore(t)
		storage = config.StorageConfig{
			EndpointURL:     store.srv.URL,
			Bucket:          "media",
			AccessKeyID:     "test-access",
			SecretAccessKey: "test-secret",
			Region:          "us-east-1",
			KeyPrefix:       "generated",
		}
	}

	runner := job.NewRunner(job.Options{
		Supervisor: sup,
		Registry:   reg,
		Binder:     workflow.NewBinder(workflow.NewFetcher(), t.TempDir()),
		Client:     comfy.NewClient(engine.srv.URL, 25*time.Millisecond, 30*time.Second),
		Pipeline:   deliver.NewPipeline(deliver.NewS3Uploader(storage), storage.KeyPrefix, zerolog.Nop()),
		OutputDir:  outputDir,
		QueueWait:  queueWait,
		Logger:     zerolog.Nop(),
	})

	srv := httptest.NewServer(httpapi.NewMux(runner))
	t.Cleanup(srv.Close)
	return &env{srv: srv, engine: engine, store: store, outputDir: outputDir}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
