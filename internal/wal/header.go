package wal

// SchemaVersion is the current record schema version.
const SchemaVersion uint16 = 1

// EventType classifies a WAL record's payload.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventPositionAdded
	EventPositionActivated
	EventFill
	EventCancelled
	EventRemoved
	EventSnapshotMarker
)

func (t EventType) String() string {
	switch t {
	case EventPositionAdded:
		return "position_added"
	case EventPositionActivated:
		return "position_activated"
	case EventFill:
		return "fill"
	case EventCancelled:
		return "cancelled"
	case EventRemoved:
		return "removed"
	case EventSnapshotMarker:
		return "snapshot_marker"
	default:
		return "unknown"
	}
}

// Header is the common metadata attached to every WAL record, the same
// shape as the teacher's schema.EventHeader without the market-data/order
// fields that only made sense for the original HFT event bus.
type Header struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) Header {
	return Header{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}
