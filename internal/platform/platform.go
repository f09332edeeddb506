// Package platform names the task platforms konnector bridges and the
// foreign ids each one stores for the other.
package platform

// Platform identifies a remote task platform.
type Platform string

const (
	Clickup Platform = "clickup"
	Todoist Platform = "todoist"
)

// ExternalIDs holds the ids of an item's counterparts on other platforms.
type ExternalIDs map[Platform]string

// Get returns the counterpart id on p, or "" when none is recorded.
func (ids ExternalIDs) Get(p Platform) string {
	if ids == nil {
		return ""
	}
	return ids[p]
}

// With returns a copy of ids with p set to id.
func (ids ExternalIDs) With(p Platform, id string) ExternalIDs {
	out := make(ExternalIDs, len(ids)+1)
	for k, v := range ids {
		out[k] = v
	}
	out[p] = id
	return out
}

// Diff returns the entries of ids that are absent from or different in other.
func (ids ExternalIDs) Diff(other ExternalIDs) ExternalIDs {
	var out ExternalIDs
	for k, v := range ids {
		if v == "" {
			continue
		}
		if other.Get(k) == v {
			continue
		}
		if out == nil {
			out = make(ExternalIDs)
		}
		out[k] = v
	}
	return out
}
