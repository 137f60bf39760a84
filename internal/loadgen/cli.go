package loadgen

import "os"

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	os.Stdout.WriteString(`leadflow load generator

Submits synthetic leads to a running leadflow service, then polls each lead
until it is claimed, exhausted or cancelled.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -leads int         Number of leads to submit (default 1000)
  -workers int       Concurrent submitters (default CPU cores * 2)
  -rate float        Submissions per second, 0 for unlimited (default 0)
  -dup int           Percentage of duplicate submissions (default 5)
  -lat, -lng float   Centre of the generated area (default 51.5074, -0.1278)
  -spread float      Radius of the generated area in km (default 25)
  -categories string Comma separated categories (default "boiler_repair,plumbing,electrical")
  -timeout duration  HTTP request timeout (default 10s)
  -settle duration   How long to wait for leads to finalize, 0 to skip (default 30s)
  -output string     Write the generated leads to this JSON file
  -verbose           Log every submission
  -help              Show this help message

Examples:
  go run ./cmd/loadgen -leads 5000 -workers 32
  go run ./cmd/loadgen -rate 200 -dup 20 -settle 2m
`)
}
