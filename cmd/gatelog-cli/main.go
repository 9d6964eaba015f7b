package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/davidahmann/gatelog/internal/policy"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "query":
		return handleQuery(args[2:], stdout, stderr)
	case "checkpoint":
		return handleCheckpoint(args[2:], stdout, stderr)
	case "rules":
		return handleRules(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("GATELOG_ADDR", defaultAddr), "gatelog API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", os.Getenv("GATELOG_TOKEN"), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/integrity", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "verify failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		Valid       bool   `json:"valid"`
		TotalEvents int    `json:"total_events"`
		BrokenAt    *int   `json:"broken_at"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}

	if payload.Valid {
		fmt.Fprintf(stdout, "valid=true events=%d\n", payload.TotalEvents)
		return 0
	}
	broken := -1
	if payload.BrokenAt != nil {
		broken = *payload.BrokenAt
	}
	fmt.Fprintf(stdout, "valid=false broken_at=%d message=%s\n", broken, payload.Message)
	return 1
}

func handleQuery(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("GATELOG_ADDR", defaultAddr), "gatelog API address")
	token := fs.String("token", os.Getenv("GATELOG_TOKEN"), "bearer token")
	eventType := fs.String("event-type", "", "filter by event type")
	actor := fs.String("actor", "", "filter by actor id")
	result := fs.String("result", "", "filter by result (success|failure|blocked)")
	violations := fs.Bool("violations", false, "only events with violations")
	limit := fs.Int("limit", 0, "maximum events to return")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	params := url.Values{}
	if *eventType != "" {
		params.Set("event_type", *eventType)
	}
	if *actor != "" {
		params.Set("actor", *actor)
	}
	if *result != "" {
		params.Set("result", *result)
	}
	if *violations {
		params.Set("has_violations", "true")
	}
	if *limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", *limit))
	}

	endpoint := *addr + "/v1/events"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	respBody, status, err := httpGet(http.DefaultClient, endpoint, *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "query failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		Events []struct {
			ID        string `json:"id"`
			Sequence  int64  `json:"sequence"`
			Timestamp string `json:"timestamp"`
			EventType string `json:"event_type"`
			Result    string `json:"result"`
		} `json:"events"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	if payload.Error != "" {
		fmt.Fprintf(stderr, "query error: %s\n", payload.Error)
		return 1
	}

	for _, event := range payload.Events {
		fmt.Fprintf(stdout, "%d\t%s\t%s\t%s\t%s\n", event.Sequence, event.Timestamp, event.EventType, event.Result, event.ID)
	}
	return 0
}

func handleCheckpoint(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("GATELOG_ADDR", defaultAddr), "gatelog API address")
	token := fs.String("token", os.Getenv("GATELOG_TOKEN"), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/checkpoint", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "checkpoint failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	_, _ = stdout.Write(respBody)
	return 0
}

func handleRules(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint":
		fs := flag.NewFlagSet("rules lint", flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			fs.Usage()
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "rules lint requires <manifest_path>")
			fs.Usage()
			return 2
		}
		path := fs.Arg(0)
		loaded, err := policy.LoadManifest(path)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		fmt.Fprintf(stdout, "ok registry_id=%s rules=%d hash=%s\n", loaded.RegistryID, len(loaded.Registry.List()), loaded.Hash)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `gatelog CLI

Usage:
  gatelog verify [--addr URL] [--json] [--token TOKEN]
  gatelog query [--event-type TYPE] [--actor ID] [--result R] [--violations] [--limit N] [--json]
  gatelog checkpoint [--addr URL] [--token TOKEN]
  gatelog rules lint <manifest_path>
`)
}
