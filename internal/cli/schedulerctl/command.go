// Package schedulerctl implements a thin operational CLI against the
// scheduler's REST API: submit a batch from a JSON file, check status,
// cancel a job, list jobs. Grounded on the teacher's cmd/sources command
// group style (a root command wiring shared flags, subcommands doing the
// work), adapted from "manage local config" to "talk to a remote API".
package schedulerctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiAddr string
	client  = &http.Client{Timeout: 30 * time.Second}
)

// Command returns the root schedulerctl command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedulerctl",
		Short: "Operate a running scheduler over its REST API",
	}
	cmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "scheduler API base URL")
	cmd.AddCommand(newSubmitCommand(), newStatusCommand(), newCancelCommand(), newListCommand())
	return cmd
}

func newSubmitCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a batch of articles from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}
			return postJSON(cmd, "/jobs/submit", raw)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `path to a JSON file: {"articles":[{"url":"..."}]}`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(cmd, "/jobs/"+args[0]+"/status")
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteJSON(cmd, "/jobs/"+args[0])
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(cmd, "/jobs")
		},
	}
}

func postJSON(cmd *cobra.Command, path string, body []byte) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiAddr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doAndPrint(cmd, req)
}

func getJSON(cmd *cobra.Command, path string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, apiAddr+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(cmd, req)
}

func deleteJSON(cmd *cobra.Command, path string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, apiAddr+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(cmd, req)
}

func doAndPrint(cmd *cobra.Command, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		cmd.Println(string(raw))
	} else {
		cmd.Println(pretty.String())
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("scheduler returned %s", resp.Status)
	}
	return nil
}
