package models

// Operation names the API operations gated by the viewpoint state machine.
type Operation string

const (
	OpDescribe   Operation = "describe"
	OpUpdate     Operation = "update"
	OpDelete     Operation = "delete"
	OpMetadata   Operation = "metadata"
	OpBounds     Operation = "bounds"
	OpInfo       Operation = "info"
	OpStatistics Operation = "statistics"
	OpPreview    Operation = "preview"
	OpTile       Operation = "tile"
	OpCrop       Operation = "crop"
	OpMapTile    Operation = "map tile"
)

// OperationClass groups operations that share legality rules.
type OperationClass int

const (
	// ClassDescribe operations are legal in every status.
	ClassDescribe OperationClass = iota
	// ClassMutate covers update and delete.
	ClassMutate
	// ClassServe covers metadata, bounds, info, statistics, preview, tile,
	// crop and map tile requests.
	ClassServe
)

func (o Operation) Class() OperationClass {
	switch o {
	case OpDescribe:
		return ClassDescribe
	case OpUpdate, OpDelete:
		return ClassMutate
	}
	return ClassServe
}

// CheckOperation decides whether an operation is legal for a viewpoint in
// the given status. It returns nil when allowed, ErrAlreadyDeleted for
// deleted viewpoints, ErrNotReady while ingestion is pending, and
// ErrIngestFailed when pixel serving is requested for a failed ingestion.
// The "not ready" and "already deleted" rejections are intentionally
// distinct signals: the first means poll again later, the second means stop.
func CheckOperation(status ViewpointStatus, op Operation) error {
	if op.Class() == ClassDescribe {
		return nil
	}
	switch status {
	case StatusReady, StatusUpdating:
		return nil
	case StatusDeleted:
		return ErrAlreadyDeleted
	case StatusRequested:
		return ErrNotReady
	case StatusFailed:
		if op.Class() == ClassMutate {
			return nil
		}
		return ErrIngestFailed
	}
	return ErrNotFound
}
