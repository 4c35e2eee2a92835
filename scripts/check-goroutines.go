package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Polls the goroutine profile on the metrics listener and prints the
// count every few seconds. Useful for spotting feed or publisher leaks
// during soak runs.
func main() {
	addr := flag.String("addr", "http://localhost:9090", "metrics listener base URL")
	interval := flag.Duration("interval", 5*time.Second, "poll interval")
	flag.Parse()

	url := *addr + "/debug/pprof/goroutine?debug=1"

	for {
		count, err := fetchGoroutineCount(url)
		if err != nil {
			fmt.Printf("Error fetching pprof: %v\n", err)
		} else {
			fmt.Printf("[%s] Goroutines: %d\n", time.Now().Format("2006-01-02 15:04:05"), count)
		}
		time.Sleep(*interval)
	}
}

func fetchGoroutineCount(url string) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	return strings.Count(string(body), "goroutine "), nil
}
