package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// --- call ---

var callCmd = &cobra.Command{
	Use:   "call <service> <method>",
	Short: "Invoke an AI service through the orchestrator",
	Long: `Invoke an AI service through the orchestrator.

Examples:
  perfai call smart-validator validate --params '{"title":"Increase NRR to 110%","target":110,"unit":"%"}'
  perfai call anomaly-detector detect --params '{"history":[100,102,98],"actual":400}'
  perfai call kpi-suggester suggest --params '{"role":"Sales Manager"}' --bypass-cache`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paramsJSON, _ := cmd.Flags().GetString("params")
		userID, _ := cmd.Flags().GetString("user")
		bypassCache, _ := cmd.Flags().GetBool("bypass-cache")

		params := map[string]any{}
		if paramsJSON != "" {
			if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
				return fmt.Errorf("invalid --params JSON: %w", err)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/services/call", map[string]any{
			"service": args[0],
			"method":  args[1],
			"params":  params,
			"options": map[string]any{
				"bypassCache": bypassCache,
				"userId":      userID,
			},
		})
		if err != nil {
			return err
		}

		var envelope struct {
			Success  bool   `json:"success"`
			Data     any    `json:"data"`
			Error    string `json:"error"`
			Cached   bool   `json:"cached"`
			Duration int64  `json:"duration"`
			CallID   string `json:"callId"`
		}
		if err := decodeJSON(resp, &envelope); err != nil {
			return err
		}

		if !envelope.Success {
			printError("call failed: %s", envelope.Error)
			return fmt.Errorf("call %s.%s failed", args[0], args[1])
		}

		if envelope.Cached {
			printStatus("Cache", "hit")
		}
		printStatus("Duration", "%dms", envelope.Duration)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(envelope.Data)
	},
}

func init() {
	callCmd.Flags().String("params", "", "call parameters as a JSON object")
	callCmd.Flags().String("user", "", "user ID recorded with the call")
	callCmd.Flags().Bool("bypass-cache", false, "skip the result cache")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a reference document into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		mimeType, _ := cmd.Flags().GetString("mime")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(args[0]))
			if mimeType == "" {
				mimeType = "text/plain"
			}
		}
		if title == "" {
			title = filepath.Base(args[0])
		}

		req := map[string]any{
			"title":    title,
			"mimeType": mimeType,
		}
		// Binary formats travel base64-encoded.
		if strings.HasPrefix(mimeType, "application/pdf") {
			req["content"] = base64.StdEncoding.EncodeToString(data)
			req["encoding"] = "base64"
		} else {
			req["content"] = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/documents", req)
		if err != nil {
			return err
		}

		var result struct {
			SourceID string `json:"sourceId"`
			Chunks   int    `json:"chunks"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %s as %s (%d chunks)", args[0], result.SourceID, result.Chunks)
		return nil
	},
}

func init() {
	indexCmd.Flags().String("title", "", "title for the document")
	indexCmd.Flags().String("mime", "", "MIME type (default: inferred from extension)")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Semantic search over the indexed reference material",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			ID       string            `json:"id"`
			SourceID string            `json:"sourceId"`
			Content  string            `json:"content"`
			Score    float32           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			if title := r.Metadata["title"]; title != "" {
				fmt.Printf("  Title: %s\n", title)
			}
			text := r.Content
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score a KPI definition against the SMART rubric",
	Long: `Score a KPI definition against the SMART rubric.

Example:
  perfai validate --title "Increase NRR to 110%" --target 110 --unit % --baseline 96 --deadline 2026-12-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			return fmt.Errorf("--title is required")
		}
		description, _ := cmd.Flags().GetString("description")
		target, _ := cmd.Flags().GetFloat64("target")
		unit, _ := cmd.Flags().GetString("unit")
		baseline, _ := cmd.Flags().GetFloat64("baseline")
		deadline, _ := cmd.Flags().GetString("deadline")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/services/call", map[string]any{
			"service": "smart-validator",
			"method":  "validate",
			"params": map[string]any{
				"title":       title,
				"description": description,
				"target":      target,
				"unit":        unit,
				"baseline":    baseline,
				"deadline":    deadline,
			},
		})
		if err != nil {
			return err
		}

		var envelope struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
			Data    struct {
				Specific    int      `json:"specific"`
				Measurable  int      `json:"measurable"`
				Achievable  int      `json:"achievable"`
				Relevant    int      `json:"relevant"`
				TimeBound   int      `json:"timeBound"`
				Overall     int      `json:"overall"`
				Suggestions []string `json:"suggestions"`
			} `json:"data"`
		}
		if err := decodeJSON(resp, &envelope); err != nil {
			return err
		}
		if !envelope.Success {
			return fmt.Errorf("validation failed: %s", envelope.Error)
		}

		s := envelope.Data
		printStatus("Specific", "%d", s.Specific)
		printStatus("Measurable", "%d", s.Measurable)
		printStatus("Achievable", "%d", s.Achievable)
		printStatus("Relevant", "%d", s.Relevant)
		printStatus("Time-bound", "%d", s.TimeBound)
		printStatus("Overall", "%s", colorize(colorBold, fmt.Sprintf("%d", s.Overall)))
		for _, sugg := range s.Suggestions {
			printWarning("%s", sugg)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().String("title", "", "KPI title")
	validateCmd.Flags().String("description", "", "KPI description")
	validateCmd.Flags().Float64("target", 0, "numeric target value")
	validateCmd.Flags().String("unit", "", "unit of measurement")
	validateCmd.Flags().Float64("baseline", 0, "current baseline value")
	validateCmd.Flags().String("deadline", "", "deadline (RFC 3339 date)")
}

// --- calls ---

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List recorded service calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprintf("%d", limit))
		if service != "" {
			q.Set("service", service)
		}
		if status != "" {
			q.Set("status", status)
		}

		resp, err := client.get(cmd.Context(), "/v1/calls?"+q.Encode())
		if err != nil {
			return err
		}

		var calls []struct {
			ID        string `json:"id"`
			Service   string `json:"service"`
			Method    string `json:"method"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
			Duration  int64  `json:"duration"`
		}
		if err := decodeJSON(resp, &calls); err != nil {
			return err
		}

		if len(calls) == 0 {
			fmt.Println("No calls recorded.")
			return nil
		}

		for _, c := range calls {
			id := c.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Printf("%s  %-30s %-25s %-8s %dms\n",
				colorize(colorCyan, id), c.Service+"."+c.Method, c.Timestamp, c.Status, c.Duration)
		}
		return nil
	},
}

func init() {
	callsCmd.Flags().String("service", "", "filter by service name")
	callsCmd.Flags().String("status", "", "filter by status (success, error, timeout)")
	callsCmd.Flags().Int("limit", 20, "maximum number of calls to list")
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show orchestrator metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/metrics")
		if err != nil {
			return err
		}

		var metrics any
		if err := decodeJSON(resp, &metrics); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}
