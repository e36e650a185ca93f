// Package main implements the integrationctl CLI for driving the Helicone
// integration service over its HTTP API.
package main

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
	// serverURL is the base URL for the integration HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "integrationctl",
	Short: "CLI for the Helicone integration service",
	Long: `integrationctl drives the Helicone integration service: start an
integration for a repository, approve or reject staged changes, and check
instance status.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8350", "integration server URL")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)

	reviewCmd.AddCommand(approveCmd)
	reviewCmd.AddCommand(rejectCmd)
	rejectCmd.Flags().StringVar(&rejectFeedback, "feedback", "", "reviewer feedback; when set the agent retries, otherwise the integration ends")
	startCmd.Flags().StringVar(&startID, "id", "", "integration id (generated when omitted)")
}

var startID string

// startCmd launches a new integration for a repository.
var startCmd = &cobra.Command{
	Use:   "start <repo-url>",
	Short: "Start a Helicone integration for a repository",
	Long: `Start a Helicone integration for a repository.

Examples:
  # Start an integration
  integrationctl start https://github.com/acme/api

  # Start with a caller-chosen id
  integrationctl start --id my-integration https://github.com/acme/api`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit a review decision for a staged integration",
}

// approveCmd approves the staged change and triggers the upstream PR.
var approveCmd = &cobra.Command{
	Use:   "approve <integration-id>",
	Short: "Approve the staged change and open the upstream PR",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var rejectFeedback string

// rejectCmd rejects the staged change, optionally with feedback for a retry.
var rejectCmd = &cobra.Command{
	Use:   "reject <integration-id>",
	Short: "Reject the staged change",
	Long: `Reject the staged change.

With --feedback the agent retries on the same branch (up to 3 attempts in
total); without it the integration ends as rejected.

Examples:
  integrationctl reject my-integration --feedback "read the key from an env var"
  integrationctl reject my-integration`,
	Args: cobra.ExactArgs(1),
	RunE: runReject,
}

// statusCmd reports the current phase of an integration.
var statusCmd = &cobra.Command{
	Use:   "status <integration-id>",
	Short: "Show the current status of an integration",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check integration server health",
	RunE:  runHealth,
}

// StartIntegrationRequest matches internal/http/server.go.
type StartIntegrationRequest struct {
	RepoURL       string `json:"repoUrl"`
	IntegrationID string `json:"integrationId,omitempty"`
}

// StartIntegrationResponse matches internal/http/server.go.
type StartIntegrationResponse struct {
	IntegrationID string `json:"integrationId"`
	RunID         string `json:"runId"`
}

// ReviewRequest matches internal/http/server.go.
type ReviewRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// StatusResponse matches internal/http/server.go.
type StatusResponse struct {
	IntegrationID string `json:"integrationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Attempts      int    `json:"attempts"`
	StagingURL    string `json:"stagingUrl,omitempty"`
	PRURL         string `json:"prUrl,omitempty"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func postJSON(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(path string, out any) error {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStart(cmd *cobra.Command, args []string) error {
	var resp StartIntegrationResponse
	err := postJSON("/api/v1/integrations", StartIntegrationRequest{
		RepoURL:       args[0],
		IntegrationID: startID,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("integration started\n  id:  %s\n  run: %s\n", resp.IntegrationID, resp.RunID)
	fmt.Printf("\ncheck progress with:\n  integrationctl status %s\n", resp.IntegrationID)
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := postJSON("/api/v1/integrations/"+id+"/review", ReviewRequest{Approved: true}, nil); err != nil {
		return err
	}
	fmt.Printf("approved %s; the upstream pull request will be opened\n", id)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	id := args[0]
	err := postJSON("/api/v1/integrations/"+id+"/review", ReviewRequest{
		Approved: false,
		Feedback: rejectFeedback,
	}, nil)
	if err != nil {
		return err
	}
	if rejectFeedback != "" {
		fmt.Printf("rejected %s with feedback; the agent will retry\n", id)
	} else {
		fmt.Printf("rejected %s; the integration is closed\n", id)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp StatusResponse
	if err := getJSON("/api/v1/integrations/"+args[0]+"/status", &resp); err != nil {
		return err
	}

	fmt.Printf("integration: %s\n", resp.IntegrationID)
	fmt.Printf("status:      %s\n", resp.Status)
	fmt.Printf("attempts:    %d\n", resp.Attempts)
	if resp.Message != "" {
		fmt.Printf("message:     %s\n", resp.Message)
	}
	if resp.StagingURL != "" {
		fmt.Printf("staging PR:  %s\n", resp.StagingURL)
	}
	if resp.PRURL != "" {
		fmt.Printf("final PR:    %s\n", resp.PRURL)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := getJSON("/health", &resp); err != nil {
		return err
	}
	fmt.Printf("server is %s\n", resp.Status)
	return nil
}
