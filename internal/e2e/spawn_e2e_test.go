package e2e

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"comfyd/internal/comfy"
	"comfyd/internal/config"
	"comfyd/internal/deliver"
	"comfyd/internal/httpapi"
	"comfyd/internal/job"
	"comfyd/internal/workflow"
	"comfyd/pkg/types"
)

// buildFakeEngineBinary compiles the fake engine used by the supervisor
// subprocess tests and returns its path.
func buildFakeEngineBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fake_comfy_server")
	cmd := exec.Command("go", "build", "-o", bin, "../comfy/testdata/fake_comfy_server.go")
	cmd.Dir = "." // package dir internal/e2e
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build fake engine: %v: %s", err, string(out))
	}
	return bin
}

// TestSpawnModeJob drives a job through the full HTTP surface with a
// managed engine: the first request spawns the subprocess, waits for
// readiness, and runs to completion.
func TestSpawnModeJob(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}

	bin := buildFakeEngineBinary(t)
	outputDir := t.TempDir()

	workflowsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workflowsDir, "t2v.json"), []byte(sampleDefinition), 0o644); err != nil {
		t.Fatalf("write workflow definition: %v", err)
	}
	reg, err := workflow.NewRegistry(workflowsDir)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	engineCfg := config.EngineConfig{
		Managed:              true,
		Command:              []string{bin, "-prompt-id", "spawn-prompt", "-output-dir", outputDir},
		Host:                 "127.0.0.1",
		Port:                 freePort(t),
		ReadyAttempts:        20,
		ReadyIntervalSeconds: 1,
		ProbeTimeoutSeconds:  1,
		StopGraceSeconds:     2,
	}
	sup := comfy.NewSupervisor(engineCfg, zerolog.Nop())
	defer sup.Stop()

	runner := job.NewRunner(job.Options{
		Supervisor: sup,
		Registry:   reg,
		Binder:     workflow.NewBinder(workflow.NewFetcher(), t.TempDir()),
		Client:     comfy.NewClient(engineCfg.BaseURL(), 100*time.Millisecond, 30*time.Second),
		Pipeline:   deliver.NewPipeline(deliver.NewS3Uploader(config.StorageConfig{}), "generated", zerolog.Nop()),
		OutputDir:  outputDir,
		Logger:     zerolog.Nop(),
	})
	srv := httptest.NewServer(httpapi.NewMux(runner))
	defer srv.Close()

	resp, body := httpPostJSON(t, srv.URL+"/v1/jobs",
		[]byte(`{"workflow_name":"t2v","params":{"prompt":"spawned"}}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("job status = %d, body: %s", resp.StatusCode, body)
	}
	var res types.JobResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Status != types.StatusCompleted {
		t.Fatalf("status = %q, error: %s", res.Status, res.Error)
	}
	if res.Metadata == nil || res.Metadata.PromptID != "spawn-prompt" {
		t.Fatalf("unexpected metadata: %+v", res.Metadata)
	}
	// No storage configured, so the produced file comes back inline.
	if len(res.Outputs) != 1 || res.Outputs[0].Format != "png" {
		t.Fatalf("unexpected outputs: %+v", res.Outputs)
	}
	if want := base64.StdEncoding.EncodeToString([]byte("png-bytes")); res.Outputs[0].Data != want {
		t.Fatalf("inline data = %q, want %q", res.Outputs[0].Data, want)
	}

	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz after spawn = %d, want 200", resp.StatusCode)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
