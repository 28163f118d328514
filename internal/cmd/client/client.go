// Package client contains the Cobra CLI commands that talk to a running
// Hose server over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g. from env or flag).
type BaseURLFunc func() string

// NewPostCommand constructs the `post` command: publish one status.
func NewPostCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a status to the message log",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			author, _ := cmd.Flags().GetString("author")
			raw, _ := cmd.Flags().GetString("json")

			fields := map[string]any{}
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &fields); err != nil {
					return fmt.Errorf("invalid --json: %w", err)
				}
			}
			if text != "" {
				fields["text"] = text
			}
			if author != "" {
				fields["author"] = author
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to post; use --text, --author, or --json")
			}

			b, _ := json.Marshal(fields)
			resp, err := http.Post(baseURL()+"/v1/statuses", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("post failed: %s", resp.Status)
			}
			var out map[string]uint64
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %d\n", out["id"])
			return nil
		},
	}
	cmd.Flags().String("text", "", "Status text")
	cmd.Flags().String("author", "", "Status author")
	cmd.Flags().String("json", "", "Raw JSON object to post (merged with --text/--author)")
	return cmd
}

// NewStreamCommand constructs the `stream` command: follow a filtered
// subscription, printing one JSON message per line until the stream ends.
func NewStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <kind>",
		Short: "Stream messages matching a filter (track|follow|location|firehose|gardenhose|spritzer|links)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, _ := cmd.Flags().GetString("content")
			backlog, _ := cmd.Flags().GetInt64("backlog")

			q := url.Values{}
			if content != "" {
				q.Set("content", content)
			}
			if backlog != 0 {
				q.Set("backlog", strconv.FormatInt(backlog, 10))
			}
			u := baseURL() + "/v1/stream/" + url.PathEscape(args[0])
			if len(q) > 0 {
				u += "?" + q.Encode()
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("stream failed: %s", resp.Status)
			}

			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for sc.Scan() {
				fmt.Fprintln(cmd.OutOrStdout(), sc.Text())
			}
			return sc.Err()
		},
	}
	cmd.Flags().String("content", "", "Filter content (kind-specific)")
	cmd.Flags().Int64("backlog", 0, "Replay window; negative for historical-only replay")
	return cmd
}
