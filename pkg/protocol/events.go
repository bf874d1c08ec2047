package protocol

// Event kinds pushed by the RLM iteration driver into the event bridge.
const (
	EventStatus      = "status"       // verbose iteration banner
	EventBriefStatus = "brief_status" // terse heartbeat (non-verbose mode)
	EventUpdate      = "update"       // rendered reasoning + code transcript
	EventFinal       = "final"        // normalized final answer, terminal
	EventError       = "error"        // terminal failure
)

// Event is one unit of loop progress. Events are delivered to the
// consumer in emission order, each at most once.
type Event struct {
	Kind    string
	Content string
	Code    string // error classification, set on EventError only
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventFinal || e.Kind == EventError
}
