// Command smoketest checks a running "claimgraph serve" instance: health,
// a known claim and an unknown one.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	baseURL string
	claimID string
	wait    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "smoketest",
	Short:         "Smoke-test the claimgraph read path",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 10 * time.Second}

		fmt.Println("1. Waiting for /healthz...")
		deadline := time.Now().Add(wait)
		for {
			status, body, err := get(client, "/healthz")
			if err == nil && status == http.StatusOK {
				fmt.Printf("PASSED: healthz %s\n", body)
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("healthz not ready after %s (status %d, err %v)", wait, status, err)
			}
			time.Sleep(500 * time.Millisecond)
		}

		if claimID != "" {
			fmt.Printf("2. Fetching claim %s...\n", claimID)
			status, body, err := get(client, "/claims/"+claimID)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("claim %s: status %d: %s", claimID, status, body)
			}
			var view map[string]any
			if err := json.Unmarshal(body, &view); err != nil {
				return fmt.Errorf("claim %s: bad body: %w", claimID, err)
			}
			for _, slot := range []string{"claim", "claimant", "assigned_agent", "close_agent"} {
				if _, ok := view[slot]; !ok {
					return fmt.Errorf("claim %s: missing %q in view", claimID, slot)
				}
			}
			fmt.Println("PASSED: claim view")
		}

		fmt.Println("3. Fetching an unknown claim...")
		status, body, err := get(client, "/claims/"+uuid.NewString())
		if err != nil {
			return err
		}
		if status != http.StatusNotFound {
			return fmt.Errorf("unknown claim: want 404, got %d: %s", status, body)
		}
		fmt.Println("PASSED: unknown claim")
		return nil
	},
}

func get(client *http.Client, path string) (int, []byte, error) {
	resp, err := client.Get(baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func main() {
	rootCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	rootCmd.Flags().StringVar(&claimID, "claim", os.Getenv("SMOKE_CLAIM_ID"), "claim id expected to exist")
	rootCmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the server")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		os.Exit(1)
	}
}
