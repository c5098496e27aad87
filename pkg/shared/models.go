package shared

// HeaderBeaconID carries the stable beacon identity on every request.
const HeaderBeaconID = "X-Beacon-ID"

// SystemInfo describes the host a beacon runs on. It is collected once at
// startup and sent only on the first check-in.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	Username     string `json:"username"`
	OSName       string `json:"os_name"`
	OSVersion    string `json:"os_version"`
	Architecture string `json:"architecture"`
	PID          int    `json:"pid"`
	CWD          string `json:"cwd"`
	IPAddresses  string `json:"ip_addresses,omitempty"`
}

// CheckinRequest is the body of every beacon → server exchange. SystemInfo is
// set on the first check-in only; CommandResults only when the beacon has
// unsent results.
type CheckinRequest struct {
	BeaconID       string          `json:"beacon_id"`
	Timestamp      string          `json:"timestamp"`
	SystemInfo     *SystemInfo     `json:"system_info,omitempty"`
	CommandResults []CommandResult `json:"command_results,omitempty"`
}

// Command is one unit of work issued by the server.
type Command struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
}

// CommandResult is the outcome of executing one Command.
type CommandResult struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Timestamp string `json:"timestamp"`
}

// CheckinResponse is the server's reply to a check-in.
type CheckinResponse struct {
	Commands []Command `json:"commands"`
}
