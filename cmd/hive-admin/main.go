// ABOUTME: Operator CLI for the hive-orchestrator HTTP API
// ABOUTME: Drives task lifecycle commands and inspects status, events, and discovery

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
 _     _
| |__ (_)_   _____
| '_ \| \ \ / / _ \
| | | | |\ V /  __/
|_| |_|_| \_/ \___|  admin
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("HIVE_ORCHESTRATOR_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	token := os.Getenv("HIVE_TOKEN")

	c := &client{baseURL: baseURL, token: token, http: &http.Client{Timeout: 15 * time.Second}}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "start":
		err = cmdStart(c, args)
	case "pause":
		err = cmdPause(c, args)
	case "resume":
		err = cmdLifecycle(c, args, "resume")
	case "stop":
		err = cmdLifecycle(c, args, "stop")
	case "status":
		err = cmdStatus(c, args)
	case "events":
		err = cmdEvents(c, args)
	case "discovery":
		err = cmdDiscovery(c)
	case "health":
		err = cmdHealth(c)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hive-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  start <task-id> <title>   Start an agent for a task")
	fmt.Println("  pause <task-id> [reason]  Pause a running agent")
	fmt.Println("  resume <task-id>          Resume a paused agent")
	fmt.Println("  stop <task-id>            Stop an agent (terminal)")
	fmt.Println("  status <task-id>          Show agent status")
	fmt.Println("  events <task-id>          Show the task's audit trail")
	fmt.Println("  discovery                 Dump the auth discovery document")
	fmt.Println("  health                    Check orchestrator health")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HIVE_ORCHESTRATOR_URL   Orchestrator base URL (default http://localhost:8080)")
	fmt.Println("  HIVE_TOKEN              Bearer token (JWT or hive_ak_ API key)")
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

// do sends one API request and decodes the JSON response into out.
func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdStart(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: hive-admin start <task-id> <title>")
	}
	taskID := args[0]
	title := strings.Join(args[1:], " ")

	body := map[string]string{"title": title}
	if err := c.do(http.MethodPost, "/api/tasks/"+taskID+"/start", body, nil); err != nil {
		return err
	}
	color.Green("✓ start accepted for task %s\n", taskID)
	return nil
}

func cmdPause(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hive-admin pause <task-id> [reason]")
	}
	body := map[string]string{}
	if len(args) > 1 {
		body["reason"] = args[1]
	}
	if err := c.do(http.MethodPost, "/api/tasks/"+args[0]+"/pause", body, nil); err != nil {
		return err
	}
	color.Green("✓ pause accepted for task %s\n", args[0])
	return nil
}

func cmdLifecycle(c *client, args []string, command string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hive-admin %s <task-id>", command)
	}
	if err := c.do(http.MethodPost, "/api/tasks/"+args[0]+"/"+command, nil, nil); err != nil {
		return err
	}
	color.Green("✓ %s accepted for task %s\n", command, args[0])
	return nil
}

func cmdStatus(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hive-admin status <task-id>")
	}

	var sum struct {
		TaskID         string  `json:"task_id"`
		Status         string  `json:"status"`
		Actions        int     `json:"actions"`
		Tokens         int64   `json:"tokens"`
		CostUSD        float64 `json:"cost_usd"`
		RetryCount     int     `json:"retry_count"`
		PauseReason    string  `json:"pause_reason"`
		Result         string  `json:"result"`
		LastError      string  `json:"last_error"`
		LastCheckpoint string  `json:"last_checkpoint"`
	}
	if err := c.do(http.MethodGet, "/api/tasks/"+args[0]+"/status", nil, &sum); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Task:\t%s\n", sum.TaskID)
	fmt.Fprintf(w, "Status:\t%s\n", colorStatus(sum.Status))
	fmt.Fprintf(w, "Actions:\t%d\n", sum.Actions)
	fmt.Fprintf(w, "Tokens:\t%d\n", sum.Tokens)
	fmt.Fprintf(w, "Cost:\t$%.4f\n", sum.CostUSD)
	if sum.PauseReason != "" {
		fmt.Fprintf(w, "Pause reason:\t%s\n", sum.PauseReason)
	}
	if sum.LastCheckpoint != "" {
		fmt.Fprintf(w, "Checkpoint:\t%s\n", sum.LastCheckpoint)
	}
	if sum.Result != "" {
		fmt.Fprintf(w, "Result:\t%s\n", sum.Result)
	}
	if sum.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", sum.LastError)
	}
	return w.Flush()
}

func colorStatus(status string) string {
	switch status {
	case "RUNNING":
		return color.GreenString(status)
	case "PAUSED":
		return color.YellowString(status)
	case "COMPLETED":
		return color.CyanString(status)
	case "FAILED", "STOPPED":
		return color.RedString(status)
	}
	return status
}

func cmdEvents(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hive-admin events <task-id>")
	}

	var out struct {
		Events []struct {
			Type string    `json:"type"`
			Time time.Time `json:"time"`
			Data json.RawMessage `json:"data"`
		} `json:"events"`
	}
	if err := c.do(http.MethodGet, "/api/tasks/"+args[0]+"/events", nil, &out); err != nil {
		return err
	}

	if len(out.Events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tDATA")
	for _, ev := range out.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			ev.Time.Local().Format("15:04:05"),
			ev.Type,
			string(ev.Data),
		)
	}
	return w.Flush()
}

func cmdDiscovery(c *client) error {
	var doc map[string]any
	if err := c.do(http.MethodGet, "/.well-known/oauth-authorization-server", nil, &doc); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func cmdHealth(c *client) error {
	var health struct {
		Status string `json:"status"`
		Actors int    `json:"actors"`
	}
	if err := c.do(http.MethodGet, "/healthz", nil, &health); err != nil {
		return err
	}
	color.Green("✓ ")
	fmt.Printf("orchestrator %s, %d active actors\n", health.Status, health.Actors)
	return nil
}
