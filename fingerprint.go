package stemflow

import "sort"

// Attribute tags keep the fingerprint surface stable as the Task struct
// grows: a new identifying attribute gets a new tag, and unset values
// serialize identically in every process.
var (
	fpTagName  = []byte("name")
	fpTagSlug  = []byte("slug")
	fpTagType  = []byte("type")
	fpTagField = []byte("field")
)

// TaskFingerprint digests a task's identifying attributes into a stable
// value. Two tasks with equal fingerprints are semantically identical;
// they may still receive different ids when their graph positions
// differ. Mutating a non-identifying attribute leaves the fingerprint
// unchanged.
func TaskFingerprint(t *Task) ID {
	parts := make([][]byte, 0, 6+3*len(t.Fields))
	parts = append(parts,
		fpTagName, []byte(t.Name),
		fpTagSlug, []byte(t.Slug),
		fpTagType, []byte(t.Type),
	)

	if len(t.Fields) > 0 {
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fpTagField, []byte(k), []byte(t.Fields[k]))
		}
	}
	return Digest(parts...)
}

// FlowFingerprint digests a flow's identity: project and name only.
// Version is deliberately excluded so that re-versioning a flow
// preserves every task id.
func FlowFingerprint(f *Flow) ID {
	return Digest([]byte(f.Project), []byte(f.Name))
}
