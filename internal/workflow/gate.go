package workflow

// GateState is the camera permission as last observed by the controller.
type GateState int

const (
	GateUnknown GateState = iota
	GateDenied
	GateGranted
)

func (s GateState) String() string {
	switch s {
	case GateDenied:
		return "denied"
	case GateGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// PermissionGate decides whether a capture request may launch the camera.
// It is owned by the controller loop and not safe for concurrent use.
type PermissionGate struct {
	state GateState
}

func (g *PermissionGate) State() GateState {
	return g.state
}

// Evaluate re-reads the provider. A grant revoked since the last check drops
// the gate back to Unknown; an earlier denial is kept until the next answer.
func (g *PermissionGate) Evaluate(p PermissionProvider) bool {
	if p.Check(PermissionCamera) {
		g.state = GateGranted
		return true
	}
	if g.state == GateGranted {
		g.state = GateUnknown
	}
	return false
}

// Resolve applies a permission response. Only a non-empty list whose every
// entry is Granted opens the gate.
func (g *PermissionGate) Resolve(results []GrantResult) bool {
	if len(results) == 0 {
		g.state = GateDenied
		return false
	}
	for _, r := range results {
		if r != Granted {
			g.state = GateDenied
			return false
		}
	}
	g.state = GateGranted
	return true
}
