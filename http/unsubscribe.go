package http

import (
	"net/http"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/pkg/hash"
)

const (
	unsubscribeMessage        = "Tu suscripción fue cancelada."
	invalidUnsubscribeMessage = "El correo o el código de verificación no son válidos."
)

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var response struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}

	query := r.URL.Query()
	email := query.Get("email")
	hashValue := query.Get("hash")

	if s.HMACSecret == "" || email == "" || !hash.VerifyHmac256(email, hashValue, s.HMACSecret) {
		response.Message = invalidUnsubscribeMessage
		writeJSONResponse(w, http.StatusBadRequest, response)
		return nil
	}
	if s.SubscriberService == nil {
		return notifier.ErrNoDatabase
	}

	if err := s.SubscriberService.Unsubscribe(r.Context(), email); err != nil {
		return err
	}

	response.OK = true
	response.Message = unsubscribeMessage
	writeJSONResponse(w, http.StatusOK, response)

	return nil
}
