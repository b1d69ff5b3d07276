package watch

import "time"

// Kind classifies a raw filesystem notification.
type Kind uint8

const (
	// KindAny is a notification whose cause the backend could not tell.
	KindAny Kind = iota
	// KindAccess is a read or open without modification.
	KindAccess
	KindCreate
	KindModify
	// KindMetadata is a permission or ownership change.
	KindMetadata
	KindRemove
	// KindRename carries the old path first and, when known, the new path last.
	KindRename
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindAccess:
		return "access"
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindMetadata:
		return "metadata"
	case KindRemove:
		return "remove"
	case KindRename:
		return "rename"
	default:
		return "other"
	}
}

// RawEvent is one notification from the watch backend.
type RawEvent struct {
	Kind  Kind
	Paths []string
}

// ChangeEvent is a filtered notification ready for the supervisor.
type ChangeEvent struct {
	Path       string
	ObservedAt time.Time
}

// WatchedPath is a root to watch plus sub-paths under it to ignore.
type WatchedPath struct {
	Root   string
	Ignore []string
}
