// README: Claim-race probe; fires concurrent rider claims at a running API and reports outcomes.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

type result struct {
	rider  string
	status int
	err    error
}

func main() {
	var (
		baseURL = flag.String("base-url", envOrDefault("DISHPATCH_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
		orderID = flag.String("order", "", "order id to claim (must be accepted/preparing)")
		riders  = flag.Int("riders", 8, "number of concurrent riders")
		tokens  = flag.String("tokens-file", "", "file with one rider bearer token per line")
	)
	flag.Parse()

	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "usage: bench -order <id> [-riders N] [-tokens-file path]")
		os.Exit(2)
	}

	riderTokens, err := loadTokens(*tokens, *riders)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/api/orders/%s/claim", *baseURL, *orderID)

	var wg sync.WaitGroup
	results := make(chan result, *riders)
	start := time.Now()

	for i := 0; i < *riders; i++ {
		token := riderTokens[i%len(riderTokens)]
		wg.Add(1)
		go func(n int, token string) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(nil))
			if err != nil {
				results <- result{rider: fmt.Sprintf("r%d", n), err: err}
				return
			}
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := client.Do(req)
			if err != nil {
				results <- result{rider: fmt.Sprintf("r%d", n), err: err}
				return
			}
			resp.Body.Close()
			results <- result{rider: fmt.Sprintf("r%d", n), status: resp.StatusCode}
		}(i, token)
	}

	wg.Wait()
	close(results)
	elapsed := time.Since(start)

	won, lost, failed := 0, 0, 0
	for r := range results {
		switch {
		case r.err != nil:
			failed++
			fmt.Printf("%s: error: %v\n", r.rider, r.err)
		case r.status == http.StatusOK:
			won++
		case r.status == http.StatusConflict:
			lost++
		default:
			failed++
			fmt.Printf("%s: unexpected status %d\n", r.rider, r.status)
		}
	}

	fmt.Printf("\n== Summary ==\nWON=%d LOST=%d FAILED=%d in %s\n", won, lost, failed, elapsed.Round(time.Millisecond))
	if won != 1 {
		fmt.Println("expected exactly one winner")
		os.Exit(1)
	}
}

func loadTokens(path string, n int) ([]string, error) {
	if path == "" {
		if tok := os.Getenv("DISHPATCH_BENCH_TOKEN"); tok != "" {
			return []string{tok}, nil
		}
		return nil, fmt.Errorf("provide -tokens-file or DISHPATCH_BENCH_TOKEN")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokens []string
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if t := string(bytes.TrimSpace(line)); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens in %s", path)
	}
	return tokens, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
