package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/tablightapp/tablight/internal/config"
	"github.com/tablightapp/tablight/internal/tabs"
)

// daemonClient talks to a running tablight daemon over its local HTTP API.
type daemonClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newDaemonClient(addr, token string) *daemonClient {
	return &daemonClient{
		baseURL: "http://" + addr,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func clientFromConfig() *daemonClient {
	cfg, err := config.Load(config.Path(config.StateDir()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return newDaemonClient(cfg.ListenAddr, cfg.Token)
}

func (c *daemonClient) get(path string, query url.Values, into any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, into)
}

func (c *daemonClient) post(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *daemonClient) do(req *http.Request, into any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? (tablight serve): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if into == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func handleSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	caller := fs.String("caller", "", "Tab id to exclude from results")

	fs.Usage = func() {
		fmt.Println("Usage: tablight search [options] <text>")
		fmt.Println()
		fmt.Println("Query the running daemon and print ranked results.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fs.Usage()
		os.Exit(1)
	}

	client := clientFromConfig()
	var results tabs.ResultSet
	q := url.Values{"q": {text}}
	if *caller != "" {
		q.Set("caller", *caller)
	}
	if err := client.get("/api/search", q, &results); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(results)
		return
	}
	printResults(results, text)
}

func handleRecent(args []string) {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	caller := fs.String("caller", "", "Tab id to exclude from results")

	fs.Usage = func() {
		fmt.Println("Usage: tablight recent [options]")
		fmt.Println()
		fmt.Println("Print the default result set: recent tabs, newest bookmarks, and")
		fmt.Println("recently closed sessions.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	client := clientFromConfig()
	var results tabs.ResultSet
	q := url.Values{}
	if *caller != "" {
		q.Set("caller", *caller)
	}
	if err := client.get("/api/defaults", q, &results); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(results)
		return
	}
	printResults(results, "")
}

func handleActivate(args []string) {
	fs := flag.NewFlagSet("activate", flag.ExitOnError)
	windowID := fs.String("window", "", "Window id of the tab")

	fs.Usage = func() {
		fmt.Println("Usage: tablight activate [options] <tab-id>")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	id := fs.Arg(0)
	if id == "" {
		fs.Usage()
		os.Exit(1)
	}

	client := clientFromConfig()
	if err := client.post("/api/activate", map[string]string{"id": id, "windowId": *windowID}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Activated tab %s\n", id)
}

func handleRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println("Usage: tablight restore <session-id>")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	id := fs.Arg(0)
	if id == "" {
		fs.Usage()
		os.Exit(1)
	}

	client := clientFromConfig()
	if err := client.post("/api/restore", map[string]string{"sessionId": id}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Restored session %s\n", id)
}

func handleOpen(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println("Usage: tablight open <url>")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	target := fs.Arg(0)
	if target == "" {
		fs.Usage()
		os.Exit(1)
	}

	client := clientFromConfig()
	if err := client.post("/api/open", map[string]string{"url": target}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Opened %s\n", target)
}

func printJSON(v any) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to format JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

func printResults(results tabs.ResultSet, query string) {
	empty := true

	if len(results.Tabs) > 0 {
		empty = false
		fmt.Println("OPEN TABS")
		for _, t := range results.Tabs {
			printEntry(highlightMatch(t.Title, query), t.URL, t.Score, t.ID)
		}
		fmt.Println()
	}

	if len(results.Bookmarks) > 0 {
		empty = false
		fmt.Println("BOOKMARKS")
		for _, b := range results.Bookmarks {
			printEntry(highlightMatch(b.Title, query), b.URL, b.Score, "")
		}
		fmt.Println()
	}

	if len(results.QuickAccess) > 0 {
		empty = false
		fmt.Println("QUICK ACCESS")
		for _, q := range results.QuickAccess {
			printEntry(highlightMatch(q.Title, query), q.URL, q.Score, "")
		}
		fmt.Println()
	}

	if len(results.RecentlyClosed) > 0 {
		empty = false
		fmt.Println("RECENTLY CLOSED")
		for _, s := range results.RecentlyClosed {
			printEntry(highlightMatch(s.Title, query), s.URL, s.Score, s.SessionID)
		}
		fmt.Println()
	}

	if empty {
		fmt.Println("No results.")
	}
}

func printEntry(title, entryURL string, score int, id string) {
	line := "  " + title
	if score > 0 {
		line += fmt.Sprintf("  (%d)", score)
	}
	if id != "" {
		line += "  [" + id + "]"
	}
	fmt.Println(line)
	if entryURL != "" {
		fmt.Printf("      %s\n", entryURL)
	}
}

// highlightMatch bolds the characters of title that the query matched, when
// stdout is a terminal.
func highlightMatch(title, query string) string {
	if title == "" {
		return "(untitled)"
	}
	if query == "" || os.Getenv("NO_COLOR") != "" {
		return title
	}

	matches := fuzzy.Find(query, []string{title})
	if len(matches) == 0 {
		return title
	}

	matched := make(map[int]bool, len(matches[0].MatchedIndexes))
	for _, idx := range matches[0].MatchedIndexes {
		matched[idx] = true
	}

	var b strings.Builder
	for i := 0; i < len(title); i++ {
		if matched[i] {
			b.WriteString("\x1b[1m")
			b.WriteByte(title[i])
			b.WriteString("\x1b[0m")
		} else {
			b.WriteByte(title[i])
		}
	}
	return b.String()
}
