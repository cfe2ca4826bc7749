// Package scan orchestrates classification into persisted scan history:
// verdict, severity banding, alerting, threat-report dedup and the alert
// stream.
package scan

// Thresholds are the risk-score cut points for the severity ladder. They
// must be strictly increasing; config validation enforces that at startup.
type Thresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultThresholds matches the production bands: critical >= 85,
// high >= 65, medium >= 40.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 85, High: 65, Medium: 40}
}

// FromRisk maps a 0-100 risk score onto a severity band.
func (t Thresholds) FromRisk(score float64) string {
	switch {
	case score >= t.Critical:
		return "critical"
	case score >= t.High:
		return "high"
	case score >= t.Medium:
		return "medium"
	default:
		return "low"
	}
}

// AlertWorthy reports whether a severity raises a threat alert.
func AlertWorthy(severity string) bool {
	return severity == "high" || severity == "critical"
}
