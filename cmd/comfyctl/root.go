package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"comfyd/pkg/types"
)

func defaultServer() string {
	if v := os.Getenv("COMFYD_SERVER"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// buildRootCmd constructs the comfyctl command tree.
func buildRootCmd() *cobra.Command {
	server := defaultServer()
	timeout := 10 * time.Minute

	root := &cobra.Command{
		Use:           "comfyctl",
		Short:         "Operator CLI for a running comfyd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "Base URL of the comfyd server (defaults COMFYD_SERVER or http://127.0.0.1:8080)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "HTTP timeout; submit waits this long for the job to finish")

	health := &cobra.Command{
		Use:     "health",
		Short:   "Check liveness and readiness",
		Example: "  comfyctl health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCtlClient(server, timeout)
			code, body, err := c.get(cmd.Context(), "/healthz")
			if err != nil {
				return fmt.Errorf("healthz: %w", err)
			}
			fmt.Printf("healthz: %d %s\n", code, body)
			code, body, err = c.get(cmd.Context(), "/readyz")
			if err != nil {
				return fmt.Errorf("readyz: %w", err)
			}
			fmt.Printf("readyz:  %d %s\n", code, body)
			if code != 200 {
				return fmt.Errorf("engine not ready")
			}
			return nil
		},
	}

	workflows := &cobra.Command{
		Use:     "workflows",
		Short:   "List registered workflow names",
		Example: "  comfyctl workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCtlClient(server, timeout)
			code, body, err := c.get(cmd.Context(), "/v1/workflows")
			if err != nil {
				return err
			}
			if code != 200 {
				return fmt.Errorf("unexpected status %d: %s", code, body)
			}
			var res types.WorkflowsResponse
			if err := json.Unmarshal(body, &res); err != nil {
				return err
			}
			for _, name := range res.Workflows {
				fmt.Println(name)
			}
			return nil
		},
	}

	var (
		workflowName string
		prompt       string
		imageURL     string
		graphFile    string
	)
	submit := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a job and print the result envelope",
		Example: "  comfyctl submit --workflow t2v --prompt \"a cat playing piano\"\n  comfyctl submit --graph graph.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.JobRequest{WorkflowName: workflowName}
			if prompt != "" {
				req.Params.Prompt = &prompt
			}
			if imageURL != "" {
				req.Params.ImageURL = &imageURL
			}
			if graphFile != "" {
				raw, err := os.ReadFile(graphFile)
				if err != nil {
					return err
				}
				req.WorkflowJSON = raw
			}
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			c := newCtlClient(server, timeout)
			code, res, err := c.postJSON(cmd.Context(), "/v1/jobs", body)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if json.Indent(&pretty, res, "", "  ") == nil {
				fmt.Println(pretty.String())
			} else {
				fmt.Printf("%s\n", res)
			}
			if code != 200 {
				return fmt.Errorf("job failed with HTTP %d", code)
			}
			return nil
		},
	}
	submit.Flags().StringVar(&workflowName, "workflow", "", "Registered workflow name (t2v, i2v, fun_camera, vace)")
	submit.Flags().StringVar(&prompt, "prompt", "", "Positive prompt text")
	submit.Flags().StringVar(&imageURL, "image-url", "", "Source image URL for image-driven workflows")
	submit.Flags().StringVar(&graphFile, "graph", "", "Path to a full workflow graph JSON file (overrides --workflow lookup)")

	root.AddCommand(health, workflows, submit)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}
