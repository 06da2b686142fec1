package http

import (
	"net/http"

	"github.com/divanjapones/notifier"
)

func (s *Server) flushPendingHandler(w http.ResponseWriter, r *http.Request) error {
	if s.Flusher == nil {
		return notifier.ErrNoDatabase
	}

	summary, err := s.Flusher.Flush(r.Context())
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusOK, summary)
	return nil
}
