package threatintel

import "time"

// RiskLevel is the classification of a confidence score.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Thresholds are inclusive lower bounds.
const (
	HighThreshold   = 75
	MediumThreshold = 25
)

// Classify maps an abuse confidence score to a risk level.
func Classify(score int) RiskLevel {
	switch {
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Report is a normalised reputation answer.
type Report struct {
	IP                string     `json:"ip"`
	Score             int        `json:"abuse_confidence_score"`
	Level             RiskLevel  `json:"risk_level"`
	TotalReports      int        `json:"total_reports"`
	DistinctReporters int        `json:"distinct_reporters,omitempty"`
	CountryCode       string     `json:"country_code,omitempty"`
	CountryName       string     `json:"country_name,omitempty"`
	IsWhitelisted     *bool      `json:"is_whitelisted,omitempty"`
	IsTor             bool       `json:"is_tor,omitempty"`
	ISP               string     `json:"isp,omitempty"`
	Domain            string     `json:"domain,omitempty"`
	UsageType         string     `json:"usage_type,omitempty"`
	LastReportedAt    *time.Time `json:"last_reported_at,omitempty"`
	// LastReportedRaw keeps a timestamp the service sent in an unexpected format.
	LastReportedRaw string `json:"last_reported_raw,omitempty"`
}
