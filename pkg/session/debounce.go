package session

import "sync"

// CameraState is the debounce state of a session's camera.
type CameraState int

const (
	// Disarmed ignores face frames.
	Disarmed CameraState = iota
	// Armed captions the next face frame, then disarms.
	Armed
)

func (s CameraState) String() string {
	if s == Armed {
		return "armed"
	}
	return "disarmed"
}

// Debounce limits face-frame captioning to one per camera activation.
// The zero value is Disarmed and ready to use.
type Debounce struct {
	mu    sync.Mutex
	state CameraState
}

// Arm allows the next face frame through.
func (d *Debounce) Arm() {
	d.mu.Lock()
	d.state = Armed
	d.mu.Unlock()
}

// Disarm drops any pending activation.
func (d *Debounce) Disarm() {
	d.mu.Lock()
	d.state = Disarmed
	d.mu.Unlock()
}

// Fire reports whether a face frame should be captioned. It returns true
// at most once per Arm.
func (d *Debounce) Fire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Armed {
		return false
	}
	d.state = Disarmed
	return true
}

// State returns the current state.
func (d *Debounce) State() CameraState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
