// Command loadtest fires a burst of concurrent booking requests at a
// running server and reports how they fared.  Pointing it at a small
// event is the quickest way to watch the no-oversell guarantee hold:
// with capacity 5 and -n 50, exactly five requests come back 201.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type result struct {
	status int
	err    error
}

func main() {
	var (
		base   = flag.String("addr", "http://localhost:8080", "server base URL")
		event  = flag.Uint64("event", 1, "event to book")
		user   = flag.Uint64("user", 1, "user placing the bookings")
		seats  = flag.Uint("seats", 1, "seats per booking")
		n      = flag.Int("n", 50, "number of concurrent bookings")
		replay = flag.Bool("replay", false, "reuse one idempotency key for every request")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	shared := uuid.NewString() // used only with -replay

	results := make(chan result, *n)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := shared
			if !*replay {
				key = uuid.NewString()
			}
			status, err := book(client, *base, *user, *event, *seats, key)
			results <- result{status: status, err: err}
		}()
	}
	wg.Wait()
	close(results)

	counts := map[int]int{}
	failed := 0
	for r := range results {
		if r.err != nil {
			failed++
			continue
		}
		counts[r.status]++
	}

	fmt.Printf("%d requests in %s\n", *n, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  booked:       %d\n", counts[http.StatusCreated])
	fmt.Printf("  replayed:     %d\n", counts[http.StatusOK])
	fmt.Printf("  sold out:     %d\n", counts[http.StatusConflict])
	fmt.Printf("  busy:         %d\n", counts[http.StatusServiceUnavailable])
	fmt.Printf("  rate limited: %d\n", counts[http.StatusTooManyRequests])
	for code, c := range counts {
		switch code {
		case http.StatusCreated, http.StatusOK, http.StatusConflict,
			http.StatusServiceUnavailable, http.StatusTooManyRequests:
		default:
			fmt.Printf("  status %d:   %d\n", code, c)
		}
	}
	if failed > 0 {
		fmt.Printf("  transport errors: %d\n", failed)
	}
}

// book posts one booking and returns the HTTP status.  The response
// body is drained so connections can be reused across the burst.
func book(client *http.Client, base string, userID, eventID uint64, seats uint, key string) (int, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id":         userID,
		"event_id":        eventID,
		"seats":           seats,
		"idempotency_key": key,
	})
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(base+"/v1/bookings", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
