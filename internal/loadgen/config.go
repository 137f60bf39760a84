package loadgen

import (
	"time"

	"github.com/okian/leadflow/internal/domain/model"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string         // Base URL of the service
	NumLeads     int            // Number of leads to generate
	Workers      int            // Number of concurrent submitters
	Rate         float64        // Submissions per second; 0 means unlimited
	DuplicatePct int            // Percentage of submissions that reuse an earlier lead id
	Center       model.Location // Leads are scattered around this point
	SpreadKM     float64        // Maximum distance from Center
	Categories   []string       // Categories to draw from
	Timeout      time.Duration  // HTTP request timeout
	SettleWait   time.Duration  // How long to poll for finalized leads
	OutputFile   string         // Output file for generated leads
	Verbose      bool           // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	LeadsGenerated  int
	LeadsSubmitted  int
	LeadsAccepted   int
	LeadsDuplicate  int
	LeadsRejected   int
	LeadsThrottled  int
	LeadsFailed     int
	LeadsFinalized  int
	LeadsUnsettled  int
	FinalByStatus   map[model.LeadStatus]int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// leadRequest is the POST /leads body.
type leadRequest struct {
	ID       string         `json:"id"`
	Location model.Location `json:"location"`
	Category string         `json:"category"`
	Urgency  model.Urgency  `json:"urgency"`
	Fee      int64          `json:"fee"`
	Value    float64        `json:"value_estimate"`
}

// ackResponse is the POST /leads reply.
type ackResponse struct {
	Status    string `json:"status"`
	LeadID    string `json:"lead_id"`
	Duplicate bool   `json:"duplicate"`
}
