// Package main - agitator
// Load generator for stress testing.
// Simulates dozens of concurrent patrol units booking arrests and polling
// custody status over WebSocket.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config for the agitator
type Config struct {
	APIURL         string
	WSURL          string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
}

// Stats tracks performance metrics
type Stats struct {
	ArrestsSent      int64
	QueriesSent      int64
	MessagesReceived int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

// Offense kinds used for simulated bookings
var offenseKinds = []string{
	"THEFT",
	"ROBBERY",
	"ASSAULT",
	"VEHICLE_THEFT",
	"DRUG_POSSESSION",
	"WEAPON_POSSESSION",
	"VANDALISM",
	"HOMICIDE",
}

var victimTypes = []string{"POLICE", "EMPLOYEE", "CIVILIAN"}

func main() {
	// Parse flags
	apiURL := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	wsURL := flag.String("ws", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent patrol units")
	interval := flag.Duration("interval", 500*time.Millisecond, "Action interval per unit")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	flag.Parse()

	config := Config{
		APIURL:         *apiURL,
		WSURL:          *wsURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
	}

	fmt.Println("=========================================")
	fmt.Println("EL AGITADOR - Custody Stress Test Tool")
	fmt.Println("=========================================")
	fmt.Printf("API: %s\n", config.APIURL)
	fmt.Printf("WS: %s\n", config.WSURL)
	fmt.Printf("Units: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	// Setup graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	// Run the stress test
	stats := runStressTest(ctx, config)

	// Print results
	printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting patrol units...")

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(unitID int) {
			defer wg.Done()
			runUnit(ctx, unitID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("All %d units started\n\n", config.NumClients)

	// Progress updates
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				arrests := atomic.LoadInt64(&stats.ArrestsSent)
				queries := atomic.LoadInt64(&stats.QueriesSent)
				recv := atomic.LoadInt64(&stats.MessagesReceived)
				errs := atomic.LoadInt64(&stats.Errors)
				fmt.Printf("Progress: Arrests=%d Queries=%d Recv=%d Errors=%d\n", arrests, queries, recv, errs)
			}
		}
	}()

	wg.Wait()
	return stats
}

func runUnit(ctx context.Context, unitID int, config Config, stats *Stats) {
	officerID := fmt.Sprintf("UNIT_%03d", unitID)

	// Connect a status console
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.WSURL, nil)
	if err != nil {
		log.Printf("Unit %d: WS connection failed: %v", unitID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// Start receiver goroutine
	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)
		}
	}()

	httpClient := &http.Client{Timeout: 5 * time.Second}

	// Send actions at configured interval
	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			subjectID := fmt.Sprintf("SUBJECT_%03d", rand.Intn(200))
			start := time.Now()

			if rand.Float32() < 0.3 {
				// Book an arrest over the HTTP API
				if err := sendArrest(ctx, httpClient, config.APIURL, officerID, subjectID); err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					continue
				}
				atomic.AddInt64(&stats.ArrestsSent, 1)
			} else {
				// Poll custody status over the WebSocket
				query := map[string]interface{}{
					"type":       "QUERY_STATUS",
					"subject_id": subjectID,
				}
				if err := conn.WriteJSON(query); err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					return
				}
				atomic.AddInt64(&stats.QueriesSent, 1)
			}

			latency := time.Since(start)
			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, latency)
			stats.mu.Unlock()
		}
	}
}

func sendArrest(ctx context.Context, client *http.Client, apiURL, officerID, subjectID string) error {
	kind := offenseKinds[rand.Intn(len(offenseKinds))]
	payload := map[string]interface{}{
		"subject_id": subjectID,
		"officer_id": officerID,
		"offenses": []map[string]interface{}{
			{
				"kind":        kind,
				"count":       1 + rand.Intn(3),
				"victim_type": victimTypes[rand.Intn(len(victimTypes))],
			},
		},
		"evaded_arrest": rand.Float32() < 0.2,
		"witnesses":     rand.Intn(4),
		"on_parole":     rand.Float32() < 0.1,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/arrest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("arrest rejected: %s", resp.Status)
	}
	return nil
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	arrests := atomic.LoadInt64(&stats.ArrestsSent)
	queries := atomic.LoadInt64(&stats.QueriesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	errs := atomic.LoadInt64(&stats.Errors)
	sent := arrests + queries

	fmt.Printf("Arrests Booked:    %d\n", arrests)
	fmt.Printf("Status Queries:    %d\n", queries)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)

	// Calculate throughput
	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	// Latency stats
	if len(stats.Latencies) > 0 {
		var total time.Duration
		var min, max time.Duration = stats.Latencies[0], stats.Latencies[0]

		for _, l := range stats.Latencies {
			total += l
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}

		avg := total / time.Duration(len(stats.Latencies))

		fmt.Printf("\nLatency:\n")
		fmt.Printf("  Min: %v\n", min)
		fmt.Printf("  Avg: %v\n", avg)
		fmt.Printf("  Max: %v\n", max)
	}

	// Verdict
	fmt.Println("\n-----------------------------------------")
	if errs == 0 {
		fmt.Println("TEST PASSED: System handled the load")
	} else if float64(errs)/float64(sent+1) < 0.05 {
		fmt.Println("TEST WARNING: Some errors detected")
	} else {
		fmt.Println("TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	// Export results as JSON
	results := map[string]interface{}{
		"arrests_booked":     arrests,
		"status_queries":     queries,
		"messages_received":  recv,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	os.WriteFile("stress_test_results.json", jsonData, 0644)
	fmt.Println("\nResults saved to stress_test_results.json")
}
