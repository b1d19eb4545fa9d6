// Package comfy owns everything that talks to the ComfyUI engine. It is
// split by concern:
//
//   - supervisor.go: engine process lifecycle (spawn, readiness probing,
//     crash detection, stop). One Supervisor per daemon; EnsureReady is
//     the only entry point callers need.
//   - client.go: the prompt/history HTTP protocol (SubmitPrompt, Await)
//     and the manifest types history responses decode into.
//   - errors.go: typed failures (engine exited, startup timeout, job
//     timeout, transport) with Is* helpers for classification upstream.
//
// The package deliberately knows nothing about workflows, delivery or
// the job envelope; it moves graphs in and manifests out.
package comfy
