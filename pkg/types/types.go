package types

import "encoding/json"

// Job result status values.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Params is the flat parameter mapping carried by a job request. Pointer
// fields distinguish "absent" from "present but empty"; an empty string
// that is present still wins precedence checks.
type Params struct {
	// Preferred prompt text; takes precedence over Prompt.
	// example: a cat playing piano, cinematic lighting
	PositivePrompt *string `json:"positive_prompt,omitempty" example:"a cat playing piano"`
	// Fallback prompt text, used when positive_prompt is absent.
	// example: a cat
	Prompt *string `json:"prompt,omitempty" example:"a cat"`
	// Negative prompt text. Accepted for forward compatibility; workflow
	// definitions carry their own negative conditioning.
	NegativePrompt *string `json:"negative_prompt,omitempty"`
	// Source image URL for image-driven workflows. Fetched and bound to
	// every load-image node in the graph.
	// example: https://example.com/cat.png
	ImageURL *string `json:"image_url,omitempty" example:"https://example.com/cat.png"`
	// Sampler seed. Accepted, not bound; definitions pin their own.
	// example: 12345
	Seed *int64 `json:"seed,omitempty" example:"12345"`
	// Sampler step count. Accepted, not bound.
	// example: 20
	Steps *int `json:"steps,omitempty" example:"20"`
	// Classifier-free guidance scale. Accepted, not bound.
	// example: 7.0
	CFG *float64 `json:"cfg,omitempty" example:"7.0"`
}

// InputAsset is an auxiliary input file reference. The field is accepted
// on the wire and reserved; no current workflow consumes it.
type InputAsset struct {
	// Asset kind, image or video.
	// example: image
	Type string `json:"type" example:"image"`
	// Asset location.
	// example: https://example.com/ref.png
	URL string `json:"url" example:"https://example.com/ref.png"`
}

// JobRequest is the invocation event: either a registered workflow name
// or a full inline graph, plus binding parameters.
type JobRequest struct {
	// Registered workflow identifier (t2v, i2v, fun_camera, vace).
	// example: t2v
	WorkflowName string `json:"workflow_name,omitempty" example:"t2v"`
	// Full job graph, overriding the registry lookup when present.
	WorkflowJSON json.RawMessage `json:"workflow_json,omitempty" swaggertype:"object"`
	// Flat parameter mapping bound into the graph.
	Params Params `json:"params,omitempty"`
	// Reserved auxiliary inputs.
	InputAssets []InputAsset `json:"input_assets,omitempty"`
}

// DeliveryRecord is one per-file result entry. Exactly one of the three
// shapes is populated: remote (url+filename), inline (data+format), or
// error (type "error" + error message).
type DeliveryRecord struct {
	// Media kind: image, video, unknown, or error.
	// example: image
	Type string `json:"type" example:"image"`
	// Public object-storage URL (remote shape).
	// example: https://storage.example.com/media/generated/t2v/1700000000_0.png
	URL string `json:"url,omitempty"`
	// Original produced filename (remote shape).
	// example: cat.png
	Filename string `json:"filename,omitempty" example:"cat.png"`
	// Base64 file content (inline shape).
	Data string `json:"data,omitempty"`
	// File extension without the dot (inline shape).
	// example: png
	Format string `json:"format,omitempty" example:"png"`
	// Failure detail (error shape).
	Error string `json:"error,omitempty"`
}

// JobMetadata accompanies a COMPLETED result.
type JobMetadata struct {
	// Workflow identifier the job ran under.
	// example: t2v
	WorkflowName string `json:"workflow_name" example:"t2v"`
	// Wall-clock job duration in seconds, rounded to 2 decimals.
	// example: 45.2
	ExecutionTime float64 `json:"execution_time" example:"45.2"`
	// Engine correlation handle for the job.
	// example: 8f2a5b1c
	PromptID string `json:"prompt_id" example:"8f2a5b1c"`
}

// JobResult is the invocation result envelope. COMPLETED carries Outputs
// and Metadata; FAILED carries Error and ExecutionTime.
type JobResult struct {
	// COMPLETED or FAILED.
	// example: COMPLETED
	Status string `json:"status" example:"COMPLETED"`
	// Ordered delivery records, one per produced file.
	Outputs []DeliveryRecord `json:"outputs,omitempty"`
	// Job metadata on success.
	Metadata *JobMetadata `json:"metadata,omitempty"`
	// Failure message.
	Error string `json:"error,omitempty"`
	// Wall-clock seconds until failure, rounded to 2 decimals.
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

// WorkflowsResponse wraps the list returned by GET /v1/workflows.
type WorkflowsResponse struct {
	// Registered workflow identifiers, sorted.
	Workflows []string `json:"workflows"`
}

// ErrorResponse is a consistent JSON error payload for transport-level
// failures (malformed body, unknown route).
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QueuedJob is one message popped from the Redis job list.
type QueuedJob struct {
	// Caller-assigned job id; generated when absent.
	ID string `json:"id,omitempty"`
	// The invocation event.
	Input JobRequest `json:"input"`
}

// QueuedResult is the message pushed to the Redis result list after a
// queued job finishes.
type QueuedResult struct {
	ID     string    `json:"id"`
	Output JobResult `json:"output"`
}
