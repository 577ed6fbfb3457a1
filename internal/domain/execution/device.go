package execution

// Device describes a compute device the backend exposes for submissions.
type Device struct {
	Name        string `json:"name"`
	Online      bool   `json:"online"`
	Simulator   bool   `json:"simulator"`
	PendingJobs int    `json:"pending_jobs"`
}

// LeastBusy returns the online device with the fewest pending jobs. It
// returns ErrNoDevices when nothing is online.
func LeastBusy(devices []Device) (Device, error) {
	var best Device
	found := false
	for _, d := range devices {
		if !d.Online {
			continue
		}
		if !found || d.PendingJobs < best.PendingJobs {
			best = d
			found = true
		}
	}
	if !found {
		return Device{}, ErrNoDevices
	}
	return best, nil
}
