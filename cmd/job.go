package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kandra-sh/kandra/internal/util"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Drive a job through Kandra's lifecycle",
}

var (
	jobSourceRepoURL string
	jobShortName     string
	jobTargetStack   string
)

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job (CREATED)",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, _ := json.Marshal(map[string]string{
			"source_repo_url": jobSourceRepoURL,
			"short_name":      jobShortName,
			"target_stack":    jobTargetStack,
		})
		return doRequestPrint(http.MethodPost, "/jobs", bytes.NewReader(body))
	},
}

var jobStartPlanningCmd = &cobra.Command{
	Use:   "start-planning <job-id>",
	Short: "Trigger planning (CREATED/FAILED -> PLANNING)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequestPrint(http.MethodPost, "/jobs/"+args[0]+"/start-planning", nil)
	},
}

var jobPlanCmd = &cobra.Command{
	Use:   "plan <job-id> <plan.json>",
	Short: "Record an externally-generated plan (PLANNING -> AWAITING_APPROVAL)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// #nosec G304 - operator-supplied path on the CLI's own command line
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}
		return doRequestPrint(http.MethodPost, "/jobs/"+args[0]+"/plan", bytes.NewReader(data))
	},
}

var jobApproveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Approve the recorded plan (AWAITING_APPROVAL -> EXECUTING)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequestPrint(http.MethodPost, "/jobs/"+args[0]+"/approve", nil)
	},
}

var jobRejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Reject the recorded plan (AWAITING_APPROVAL -> CREATED)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRequestPrint(http.MethodPost, "/jobs/"+args[0]+"/reject", nil)
	},
}

var jobGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJob(args[0])
	},
}

var jobTailCmd = &cobra.Command{
	Use:   "tail <job-id>",
	Short: "Replay and tail a job's event stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailJob(cmd, args[0])
	},
}

func init() {
	jobCreateCmd.Flags().StringVar(&jobSourceRepoURL, "repo", "", "source repository URL")
	jobCreateCmd.Flags().StringVar(&jobShortName, "name", "", "short name for the workspace directory")
	jobCreateCmd.Flags().StringVar(&jobTargetStack, "stack", "", "target technology stack (free-form)")
	_ = jobCreateCmd.MarkFlagRequired("repo")
	_ = jobCreateCmd.MarkFlagRequired("name")
	_ = jobCreateCmd.MarkFlagRequired("stack")

	jobCmd.AddCommand(jobCreateCmd, jobStartPlanningCmd, jobPlanCmd, jobApproveCmd, jobRejectCmd, jobGetCmd, jobTailCmd)
}

// doRequestPrint issues a request against the daemon and pretty-prints its
// JSON response (or surfaces its error body) to stdout/stderr.
func doRequestPrint(method, path string, body io.Reader) error {
	req, err := http.NewRequest(method, "http://"+resolveAddr()+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling kandrad at %s: %w", resolveAddr(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw) // not JSON; print verbatim
	}

	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, pretty.String())
		return fmt.Errorf("kandrad returned %s", resp.Status)
	}
	fmt.Println(pretty.String())
	return nil
}

// getJob fetches a job and prints it, followed by a human-readable age line
// ("age: 3 minutes") computed from its CreatedAt timestamp.
func getJob(jobID string) error {
	req, err := http.NewRequest(http.MethodGet, "http://"+resolveAddr()+"/jobs/"+jobID, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling kandrad at %s: %w", resolveAddr(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}

	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, pretty.String())
		return fmt.Errorf("kandrad returned %s", resp.Status)
	}
	fmt.Println(pretty.String())

	var j struct {
		CreatedAt time.Time
	}
	if err := json.Unmarshal(raw, &j); err == nil && !j.CreatedAt.IsZero() {
		fmt.Printf("age: %s\n", util.FormatDuration(time.Since(j.CreatedAt)))
	}
	return nil
}

// tailJob opens the stream endpoint and prints each newline-delimited JSON
// envelope as it arrives. It never sends pings — the server's heartbeat
// keeps the connection alive regardless of client silence, per spec §4.8.
func tailJob(cmd *cobra.Command, jobID string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://"+resolveAddr()+"/jobs/"+jobID+"/stream", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling kandrad at %s: %w", resolveAddr(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kandrad returned %s: %s", resp.Status, raw)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}
