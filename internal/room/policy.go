package room

import "fmt"

// CapacityPolicy rejects joins that would push a room past max participants.
// The upstream behavior is no cap at all; this exists so deployments that
// want one only have to flip a config knob.
func CapacityPolicy(max int) JoinPolicy {
	return func(roomID string, occupants int) error {
		if max > 0 && occupants >= max {
			return fmt.Errorf("room %q is full (%d participants)", roomID, occupants)
		}
		return nil
	}
}
