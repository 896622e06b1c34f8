package event

import "fmt"

// EventString renders a short "CATEGORY:COMMAND" description of ev, for
// logging. It deliberately reproduces a quirk of the original
// implementation: the TARGET-category branch looks up the translation
// table using ev.ExternalKind() (the "ext" field) rather than
// ev.TargetKind() (the "tgt" field) it actually means to format. In the
// original C, tgt.kind and ext.kind are different members of the same
// union and often share the same byte offset, which is presumably how this
// went unnoticed; this port's flat Kind field reproduces that overlap
// exactly. Kept for parity with upstream traces rather than "fixed" here,
// per the spec's instruction not to silently correct it.
func EventString(ev *Event) string {
	var cmd string
	switch ev.Category {
	case CategoryTarget:
		idx := int(ev.ExternalKind())
		if idx < 0 || idx >= len(targetNames) {
			cmd = "overflow/broken"
		} else {
			cmd = targetNames[idx]
		}
	case CategoryFSRV:
		idx := int(ev.FSRVKind())
		if idx < 0 || idx >= len(fsrvNames) {
			cmd = ""
		} else {
			cmd = fsrvNames[idx]
		}
	case CategoryExternal:
		idx := int(ev.ExternalKind())
		if idx < 0 || idx >= len(externalNames) {
			cmd = "overflow/broken"
		} else {
			cmd = externalNames[idx]
		}
	default:
		cmd = "UNKNOWN"
	}
	return fmt.Sprintf("%s:%s", ev.Category, cmd)
}
