package execution

// Result is the output document of a completed execution: the measurement
// counts histogram keyed by classical bitstring. The backend only serves a
// result once the job is DONE.
type Result struct {
	JobID   string         `json:"job_id"`
	Device  string         `json:"device"`
	Success bool           `json:"success"`
	Shots   int            `json:"shots"`
	Counts  map[string]int `json:"counts"`
}
