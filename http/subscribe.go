package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/notification"
)

const (
	alreadySubscribedMessage = "Ya estabas suscrito al newsletter."
)

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var req notifier.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "Cuerpo de la solicitud inválido")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return &notifier.Error{Code: notifier.ErrInvalid, Op: "http.subscribe", Message: `El campo "email" es requerido`}
	}
	if s.SubscriberService == nil {
		return notifier.ErrNoDatabase
	}

	subscriber, created, err := s.SubscriberService.Subscribe(r.Context(), email)
	if err != nil {
		return err
	}

	logger := hlog.FromRequest(r)
	if s.QueueService != nil {
		// a queue failure does not fail the subscription
		if err := notification.PublishWelcome(r.Context(), s.QueueService, subscriber.Email); err != nil {
			logger.Warn().Err(err).Bool("created", created).Msg("Failed to queue welcome email")
		}
	}

	resp := &notifier.SubscriptionResponse{
		OK:         true,
		Subscriber: subscriber,
	}
	if !created {
		resp.Message = alreadySubscribedMessage
	}
	writeJSONResponse(w, http.StatusCreated, resp)

	return nil
}
