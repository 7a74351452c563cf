// README: Race verification tool; fires concurrent accepts at a booking and checks for one winner.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL     string
	BookingID   string
	Concurrency int
	AdminKey    string
	Reset       bool
	Timeout     time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("CHECKRIDE_RACECHECK_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.BookingID, "booking", "", "Booking id to race on (e.g. BK000001)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 8, "Concurrent accept attempts")
	flag.StringVar(&cfg.AdminKey, "admin-key", os.Getenv("CHECKRIDE_HTTP_ADMIN_API_KEY"), "Admin API key, needed for -reset")
	flag.BoolVar(&cfg.Reset, "reset", false, "Reset the booking before racing")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Total timeout")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type acceptResult struct {
	racer    int
	status   int
	accepted bool
	err      error
}

func main() {
	cfg := loadConfig()
	if cfg.BookingID == "" {
		fmt.Fprintln(os.Stderr, "usage: racecheck -booking BK000001 [-concurrency 8] [-reset]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	httpc := &http.Client{Timeout: 10 * time.Second}

	if cfg.Reset {
		if err := resetBooking(ctx, httpc, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("booking %s reset\n", cfg.BookingID)
	}

	results := make([]acceptResult, cfg.Concurrency)
	var start sync.WaitGroup
	start.Add(1)
	var done sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			results[i] = attemptAccept(ctx, httpc, cfg, i)
		}(i)
	}
	start.Done()
	done.Wait()

	winners, losses, failures := 0, 0, 0
	for _, r := range results {
		switch {
		case r.err != nil || r.status != http.StatusOK:
			failures++
			fmt.Printf("racer %d: FAIL status=%d err=%v\n", r.racer, r.status, r.err)
		case r.accepted:
			winners++
			fmt.Printf("racer %d: WON\n", r.racer)
		default:
			losses++
			fmt.Printf("racer %d: lost\n", r.racer)
		}
	}

	fmt.Printf("\nwinners=%d losses=%d failures=%d\n", winners, losses, failures)
	if winners != 1 {
		fmt.Println("RACE CHECK FAILED: expected exactly one winner")
		os.Exit(1)
	}
	fmt.Println("RACE CHECK PASSED")
}

func attemptAccept(ctx context.Context, httpc *http.Client, cfg Config, racer int) acceptResult {
	body, _ := json.Marshal(map[string]string{
		"examinerEmail": fmt.Sprintf("racer%d@racecheck.test", racer),
		"examinerName":  fmt.Sprintf("Race Check %d", racer),
		"response":      "accept",
	})
	url := fmt.Sprintf("%s/api/bookings/%s/respond", cfg.BaseURL, cfg.BookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return acceptResult{racer: racer, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return acceptResult{racer: racer, err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return acceptResult{racer: racer, status: resp.StatusCode, err: err}
	}
	return acceptResult{racer: racer, status: resp.StatusCode, accepted: out.Accepted}
}

func resetBooking(ctx context.Context, httpc *http.Client, cfg Config) error {
	url := fmt.Sprintf("%s/api/admin/bookings/%s/reset", cfg.BaseURL, cfg.BookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Key", cfg.AdminKey)
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset returned %d", resp.StatusCode)
	}
	return nil
}
