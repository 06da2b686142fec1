package http

import (
	"encoding/json"
	"net/http"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/divanjapones/notifier"
)

func (s *Server) listArticlesHandler(w http.ResponseWriter, r *http.Request) error {
	if s.ArticleService == nil {
		return notifier.ErrNoDatabase
	}

	articles, err := s.ArticleService.List(r.Context())
	if err != nil {
		return err
	}
	if articles == nil {
		articles = []notifier.Article{}
	}

	writeJSONResponse(w, http.StatusOK, articles)
	return nil
}

func (s *Server) createArticleHandler(w http.ResponseWriter, r *http.Request) error {
	if s.ArticleService == nil {
		return notifier.ErrNoDatabase
	}

	var req notifier.ArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "Cuerpo de la solicitud inválido")
	}

	article, err := req.Normalize(uuid.NewV4().String(), time.Now())
	if err != nil {
		return err
	}

	created, err := s.ArticleService.Create(r.Context(), article)
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusCreated, created)
	return nil
}

func (s *Server) listMagazinesHandler(w http.ResponseWriter, r *http.Request) error {
	if s.MagazineService == nil {
		return notifier.ErrNoDatabase
	}

	magazines, err := s.MagazineService.List(r.Context())
	if err != nil {
		return err
	}
	if magazines == nil {
		magazines = []notifier.Magazine{}
	}

	writeJSONResponse(w, http.StatusOK, magazines)
	return nil
}

func (s *Server) createMagazineHandler(w http.ResponseWriter, r *http.Request) error {
	if s.MagazineService == nil {
		return notifier.ErrNoDatabase
	}

	var req notifier.MagazineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return NewError(err, http.StatusBadRequest, "Cuerpo de la solicitud inválido")
	}

	magazine, err := req.Normalize(uuid.NewV4().String(), time.Now())
	if err != nil {
		return err
	}

	created, err := s.MagazineService.Create(r.Context(), magazine)
	if err != nil {
		return err
	}

	writeJSONResponse(w, http.StatusCreated, created)
	return nil
}
