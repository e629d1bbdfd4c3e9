package types

// ReportMessage announces one finished subject report to downstream
// consumers (dashboards, archival jobs) over the message queue.
type ReportMessage struct {
	BatchID   string   `json:"batch_id"`
	Subject   string   `json:"subject"`
	TablePath string   `json:"table"`
	PlotPaths []string `json:"plots"`
}
