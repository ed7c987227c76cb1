package persist

// Handler receives lifecycle events from a Session. Methods run
// synchronously on the simulation tick.
type Handler interface {
	HandleSpaceOpened(e *EventSpaceOpened)
	HandleSpaceClosed(e *EventSpaceClosed)
	HandleUnresolved(e *EventUnresolved)
	HandleOpenTimeout(e *EventOpenTimeout)
}

// NopHandler implements Handler with empty methods. Embed it to handle only
// the events you care about.
type NopHandler struct{}

func (NopHandler) HandleSpaceOpened(*EventSpaceOpened) {}
func (NopHandler) HandleSpaceClosed(*EventSpaceClosed) {}
func (NopHandler) HandleUnresolved(*EventUnresolved)   {}
func (NopHandler) HandleOpenTimeout(*EventOpenTimeout) {}

// Compile-time check that NopHandler implements Handler.
var _ Handler = NopHandler{}
