package section

// Status is the build state of a section.
//
//	Empty -> Pending -> Building -> Ready
//	Ready -> Pending         (re-dirtied)
//	any   -> Empty           (unloaded or world swapped)
type Status uint8

const (
	StatusEmpty Status = iota
	StatusPending
	StatusBuilding
	StatusReady

	statusCount
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusPending:
		return "PENDING"
	case StatusBuilding:
		return "BUILDING"
	case StatusReady:
		return "READY"
	}
	return "UNKNOWN"
}
