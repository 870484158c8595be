// Package main provides the HEALPix store browser HTTP server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	httpHandler "go.ngs.io/hptrack/internal/http"
	"go.ngs.io/hptrack/internal/observability"
	"go.ngs.io/hptrack/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("hpserve version %s\n", version)
		return
	}

	// Load configuration from environment.
	port := getEnv("PORT", "8080")
	dataDir := getEnv("DATA_DIR", "./data")

	log.Printf("Starting HEALPix store server...")
	log.Printf("Port: %s", port)
	log.Printf("Data directory: %s", dataDir)

	browser := usecase.NewStoreBrowser(dataDir)
	if stores, err := browser.List(); err != nil {
		log.Printf("Warning: %v", err)
	} else {
		log.Printf("Found %d level stores", len(stores))
	}

	// Setup router.
	router := httpHandler.SetupRouter(browser, observability.NewMetrics())

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	log.Printf("Server listening on %s", addr)
	log.Printf("Health check: http://localhost:%s/health", port)
	log.Printf("API endpoints:")
	log.Printf("  - GET /v1/stores")
	log.Printf("  - GET /v1/stores/:name/metadata")
	log.Printf("  - GET /v1/stores/:name/value")
	log.Printf("  - GET /zarr/:name/*key")
	log.Printf("  - GET /metrics")

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("HEALPix Store Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  hpserve [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  DATA_DIR                Directory holding *_all_hp{level}_v{version}.zarr stores (default: ./data)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Serve the stores written by hpconvert")
	fmt.Println("  DATA_DIR=/scratch/ar_hpzarr hpserve")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                          Health check")
	fmt.Println("  GET /v1/stores                       List level stores")
	fmt.Println("  GET /v1/stores/:name/metadata        Consolidated Zarr metadata")
	fmt.Println("  GET /v1/stores/:name/value           Value at ?var=&lat=&lon= (other dims by name, e.g. time=3)")
	fmt.Println("  GET /zarr/:name/*key                 Raw store keys for Zarr clients")
	fmt.Println("  GET /metrics                         Prometheus metrics")
	fmt.Println()
}
