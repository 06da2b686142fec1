package http

import (
	"net/http"

	"github.com/divanjapones/notifier"
)

func (s *Server) listSubscribersHandler(w http.ResponseWriter, r *http.Request) error {
	if s.SubscriberService == nil {
		writeJSONResponse(w, http.StatusOK, []notifier.Subscriber{})
		return nil
	}

	subscribers, err := s.SubscriberService.List(r.Context())
	if err != nil {
		return err
	}
	if subscribers == nil {
		subscribers = []notifier.Subscriber{}
	}

	writeJSONResponse(w, http.StatusOK, subscribers)
	return nil
}
