package job

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comfyd/internal/comfy"
	"comfyd/internal/deliver"
	"comfyd/internal/output"
	"comfyd/internal/workflow"
	"comfyd/pkg/types"
)

// Runner drives one job end to end: admission, engine readiness, graph
// resolution, binding, submission, polling, collection, delivery. Every
// failure surfaces as a FAILED envelope plus the causing error, so
// transports can derive a status code from its kind while queue
// consumers ship the envelope as-is.
type Runner struct {
	sup       *comfy.Supervisor
	registry  *workflow.Registry
	binder    *workflow.Binder
	client    *comfy.Client
	pipeline  *deliver.Pipeline
	gate      *gate
	outputDir string
	pub       EventPublisher
	log       zerolog.Logger
}

// Options wires the runner's collaborators.
type Options struct {
	Supervisor *comfy.Supervisor
	Registry   *workflow.Registry
	Binder     *workflow.Binder
	Client     *comfy.Client
	Pipeline   *deliver.Pipeline
	// OutputDir is where the engine writes produced media.
	OutputDir string
	// QueueWait bounds how long a request may wait for the job slot;
	// zero rejects immediately while a job is running.
	QueueWait time.Duration
	Publisher EventPublisher
	Logger    zerolog.Logger
}

func NewRunner(opts Options) *Runner {
	pub := opts.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Runner{
		sup:       opts.Supervisor,
		registry:  opts.Registry,
		binder:    opts.Binder,
		client:    opts.Client,
		pipeline:  opts.Pipeline,
		gate:      newGate(opts.QueueWait),
		outputDir: opts.OutputDir,
		pub:       pub,
		log:       opts.Logger.With().Str("component", "job").Logger(),
	}
}

// Workflows lists the registered workflow names.
func (r *Runner) Workflows() []string { return r.registry.Names() }

// Ready reports engine readiness for health endpoints.
func (r *Runner) Ready() bool { return r.sup.Ready() }

// Run executes one job request. The returned envelope is always
// terminal (COMPLETED or FAILED); the error is non-nil exactly when the
// envelope is FAILED.
func (r *Runner) Run(ctx context.Context, req types.JobRequest) (types.JobResult, error) {
	start := time.Now()
	jobID := uuid.NewString()
	label := workflowLabel(req)
	log := r.log.With().Str("job_id", jobID).Str("workflow", label).Logger()

	release, err := r.gate.acquire(ctx)
	if err != nil {
		if IsBusy(err) {
			jobsBusyTotal.Inc()
		}
		return r.failed(log, jobID, label, start, err)
	}
	defer release()

	r.pub.Publish(Event{Name: "job_start", JobID: jobID, Fields: map[string]any{"workflow": label}})
	log.Info().Msg("job started")

	records, promptID, err := r.execute(ctx, req, label, log)
	if err != nil {
		return r.failed(log, jobID, label, start, err)
	}

	elapsed := round2(time.Since(start).Seconds())
	jobsTotal.WithLabelValues("completed", label).Inc()
	jobDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	r.pub.Publish(Event{Name: "job_completed", JobID: jobID, Fields: map[string]any{
		"workflow": label, "prompt_id": promptID, "outputs": len(records), "duration_seconds": elapsed,
	}})
	log.Info().Str("prompt_id", promptID).Int("outputs", len(records)).Float64("duration_seconds", elapsed).Msg("job completed")

	return types.JobResult{
		Status:  types.StatusCompleted,
		Outputs: records,
		Metadata: &types.JobMetadata{
			WorkflowName:  label,
			ExecutionTime: elapsed,
			PromptID:      promptID,
		},
	}, nil
}

// execute runs the pipeline stages in order. The engine is ensured
// before the request shape is inspected; a cold worker warms up even
// when the first event turns out to be invalid.
func (r *Runner) execute(ctx context.Context, req types.JobRequest, label string, log zerolog.Logger) ([]types.DeliveryRecord, string, error) {
	if err := r.sup.EnsureReady(ctx); err != nil {
		return nil, "", err
	}

	graph, err := r.resolveGraph(req)
	if err != nil {
		return nil, "", err
	}
	if err := r.binder.Bind(ctx, graph, req.Params); err != nil {
		return nil, "", err
	}

	promptID, err := r.client.SubmitPrompt(ctx, graph)
	if err != nil {
		return nil, "", err
	}
	log.Debug().Str("prompt_id", promptID).Msg("prompt queued")

	manifest, err := r.client.Await(ctx, promptID)
	if err != nil {
		return nil, promptID, err
	}

	paths := output.Collect(manifest, r.outputDir)
	if len(paths) == 0 {
		return nil, promptID, errors.New("no output files generated")
	}
	return r.pipeline.Deliver(ctx, paths, label), promptID, nil
}

// resolveGraph prefers a non-empty inline graph; otherwise the named
// definition. An inline graph with zero nodes counts as absent and
// falls through to the name lookup.
func (r *Runner) resolveGraph(req types.JobRequest) (workflow.Graph, error) {
	if len(req.WorkflowJSON) > 0 {
		g, err := workflow.ParseGraph(req.WorkflowJSON)
		if err != nil {
			return nil, errValidation("invalid workflow_json: " + err.Error())
		}
		if len(g) > 0 {
			return g, nil
		}
	}
	if strings.TrimSpace(req.WorkflowName) == "" {
		return nil, errValidation("workflow_name or workflow_json is required")
	}
	return r.registry.Resolve(strings.TrimSpace(req.WorkflowName))
}

func (r *Runner) failed(log zerolog.Logger, jobID, label string, start time.Time, err error) (types.JobResult, error) {
	elapsed := round2(time.Since(start).Seconds())
	jobsTotal.WithLabelValues("failed", label).Inc()
	r.pub.Publish(Event{Name: "job_failed", JobID: jobID, Fields: map[string]any{
		"workflow": label, "error": err.Error(), "duration_seconds": elapsed,
	}})
	log.Error().Err(err).Float64("duration_seconds", elapsed).Msg("job failed")
	return types.JobResult{
		Status:        types.StatusFailed,
		Error:         err.Error(),
		ExecutionTime: &elapsed,
	}, err
}

// workflowLabel names the job for storage keys and metadata; inline
// graphs submitted without a name are labeled custom.
func workflowLabel(req types.JobRequest) string {
	if name := strings.TrimSpace(req.WorkflowName); name != "" {
		return name
	}
	return "custom"
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
