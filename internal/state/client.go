package state

// Process status values reported by workers.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// JobStats carries the job counters a worker reports. The server is trusted
// for consistency: ok+fail+remaining is not required to equal all, and the
// store keeps whatever arrives.
type JobStats struct {
	OK        int `json:"ok"`
	Fail      int `json:"fail"`
	Remaining int `json:"remaining"`
	All       int `json:"all"`
}

// Progress returns the completion percentage derived from the counters,
// clamped to [0,100]. The raw counters are never adjusted.
func (j JobStats) Progress() int {
	if j.All <= 0 {
		return 0
	}
	p := (j.OK + j.Fail) * 100 / j.All
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Client is the mirror of one remote worker process. Field names follow the
// wire format exactly.
type Client struct {
	ID            string   `json:"id"`
	Hostname      string   `json:"hostname"`
	IP            string   `json:"ip"`
	ProcessStatus string   `json:"process_status"`
	CPU           float64  `json:"cpu"`
	RAM           float64  `json:"ram"`
	Threads       int      `json:"threads"`
	LastUpdate    string   `json:"last_update"`
	Jobs          JobStats `json:"jobs"`
}

// Running reports whether the worker's process is currently running.
func (c Client) Running() bool { return c.ProcessStatus == StatusRunning }

// Update is the mutable subset of Client carried by a status_update delta.
// Hostname and IP are optional on the wire; the remaining fields are always
// sent together and are applied verbatim.
type Update struct {
	Hostname      string   `json:"hostname,omitempty"`
	IP            string   `json:"ip,omitempty"`
	ProcessStatus string   `json:"process_status"`
	CPU           float64  `json:"cpu"`
	RAM           float64  `json:"ram"`
	Threads       int      `json:"threads"`
	LastUpdate    string   `json:"last_update"`
	Jobs          JobStats `json:"jobs"`
}

// FleetStats aggregates the fleet for status displays.
type FleetStats struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Stopped   int `json:"stopped"`
	TotalJobs int `json:"total_jobs"`
}
