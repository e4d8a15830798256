package transfer

import "sync"

// Mode is the coarse activity of the local device.
type Mode string

const (
	ModeIdle         Mode = "IDLE"
	ModeReceiveArmed Mode = "RECEIVE_ARMED"
	ModeSendArmed    Mode = "SEND_ARMED"
	ModeConnecting   Mode = "CONNECTING"
	ModeTransferring Mode = "TRANSFERRING"
)

var knownModes = map[Mode]struct{}{
	ModeIdle:         {},
	ModeReceiveArmed: {},
	ModeSendArmed:    {},
	ModeConnecting:   {},
	ModeTransferring: {},
}

// State tracks the current Mode. The zero value is IDLE.
type State struct {
	mu   sync.RWMutex
	mode Mode
}

// NewState returns a State in IDLE.
func NewState() *State {
	return &State{mode: ModeIdle}
}

// Set switches to mode. Unknown modes are ignored and reported as false.
func (s *State) Set(mode Mode) bool {
	if s == nil {
		return false
	}
	if _, ok := knownModes[mode]; !ok {
		return false
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return true
}

// Mode returns the current mode.
func (s *State) Mode() Mode {
	if s == nil {
		return ModeIdle
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == "" {
		return ModeIdle
	}
	return s.mode
}
