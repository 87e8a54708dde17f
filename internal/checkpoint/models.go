// Package checkpoint provides checkpoint identity resolution for commute routes.
package checkpoint

// Type classifies a checkpoint on a commute route.
type Type string

// Checkpoint types.
const (
	TypeSubway   Type = "subway"
	TypeBusStop  Type = "bus_stop"
	TypeCustom   Type = "custom"
	TypeHome     Type = "home"
	TypeWork     Type = "work"
	TypeTransfer Type = "transfer"
)

// Checkpoint is a named waypoint on a commute route. Immutable once a
// session references it; owned by the route that declares it.
type Checkpoint struct {
	Name            string
	Type            Type
	LinkedStationID string
	LinkedBusStopID string
}
