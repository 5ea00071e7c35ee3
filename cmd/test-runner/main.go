// Package main - test_runner.go
// Executable to run custody smoke tests against the in-memory engine.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/custodia-rp/custody-server/test"
)

func main() {
	fmt.Println("CUSTODY SERVER - SMOKE TEST SUITE")
	fmt.Println("================================================")

	ctx := context.Background()

	fmt.Println("\nRunning: La Primera Redada...")
	scenario := test.NewBookingScenarioTest()
	scenario.RunTest(ctx)

	// Summary
	results := scenario.GetResults()
	passed := 0
	failed := 0

	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("TEST SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		fmt.Println("\nThe booking pipeline requires attention")
		os.Exit(1)
	}
	fmt.Println("\nThe booking pipeline is ready for deployment")
	os.Exit(0)
}
