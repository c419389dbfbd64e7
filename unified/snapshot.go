package unified

import (
	"encoding/json"
	"time"

	"github.com/hupe1980/echomesh/core"
)

// SnapshotVersion tags the snapshot wire format.
const SnapshotVersion = 1

// Snapshot is a portable capture of the virtual models for persistence
// across restarts. Only the virtual state travels: actual membrane state is
// the hosting runtime's concern.
type Snapshot struct {
	Version     int                     `json:"version"`
	Instance    string                  `json:"instance"`
	CapturedAt  time.Time               `json:"captured_at"`
	VirtualSelf *core.VirtualAgentModel `json:"virtual_self"`
	CycleNumber int                     `json:"cycle_number"`
}

// ExportSnapshot captures the virtual models as a detached snapshot. The
// snapshot's world-model is a deep copy and does not alias the live Vo.
func (s *Server) ExportSnapshot() Snapshot {
	return Snapshot{
		Version:     SnapshotVersion,
		Instance:    s.name,
		CapturedAt:  time.Now().UTC(),
		VirtualSelf: s.agent.VirtualSelf(),
		CycleNumber: s.coordinator.CycleNumber(),
	}
}

// ImportSnapshot restores the virtual models from a snapshot. The live Vi
// and Vo keep their identities: snapshot contents are copied into them in
// place, so the self-model keeps nesting the same tracked world-model.
// Divergence timestamps are regenerated rather than trusted from the
// snapshot, since the actual state they referred to is gone.
func (s *Server) ImportSnapshot(snap Snapshot) error {
	if snap.VirtualSelf == nil {
		return core.NewInvalidArgument("unified.importSnapshot", "virtual_self", "snapshot carries no virtual self-model")
	}
	if snap.Version != SnapshotVersion {
		return core.NewInvalidArgument("unified.importSnapshot", "version", "unsupported snapshot version %d", snap.Version)
	}

	restored := snap.VirtualSelf.Clone()
	now := time.Now().UTC()
	restored.SelfAwareness.LastReflection = now
	if restored.WorldView != nil {
		restored.WorldView.DivergenceMetrics.LastSyncTime = now
	}

	s.agent.ImportVirtual(restored)
	return nil
}

// MarshalSnapshot serializes a snapshot to JSON.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// UnmarshalSnapshot parses a snapshot from JSON.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, core.NewInvalidArgument("unified.unmarshalSnapshot", "data", "malformed snapshot: %v", err)
	}
	return snap, nil
}
