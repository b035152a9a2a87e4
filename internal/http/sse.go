package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// streamPlayEvents pushes every state change of a play as a server-sent
// event until the client leaves or the play is stopped.
func (s *Server) streamPlayEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	play, ok := s.lookupPlay(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for st := range play.Watch(r.Context().Done()) {
		data, err := json.Marshal(st)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "event: end\ndata: {}\n\n")
	flusher.Flush()
}
