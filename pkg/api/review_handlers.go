package api

import (
	"errors"
	"net/http"

	"github.com/wardenhq/warden/pkg/directory"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/staging"
)

func (s *Server) readPendingChanges(w http.ResponseWriter, r *http.Request) {
	sessionID := observability.GetSessionID(r.Context())
	if sessionID == "" {
		httputil.WriteBadRequest(w, "missing "+middleware.SessionHeader+" header")
		return
	}
	doc, err := s.committer.ReadPendingChanges(r.Context(), sessionID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) overwritePendingChanges(w http.ResponseWriter, r *http.Request) {
	sessionID := observability.GetSessionID(r.Context())
	if sessionID == "" {
		httputil.WriteBadRequest(w, "missing "+middleware.SessionHeader+" header")
		return
	}
	var doc staging.SessionDocument
	if !httputil.ParseJSONOrError(w, r, &doc) {
		return
	}
	if err := s.committer.OverwritePendingChanges(r.Context(), sessionID, &doc); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) reviewAndSave(w http.ResponseWriter, r *http.Request) {
	sessionID := observability.GetSessionID(r.Context())
	if sessionID == "" {
		httputil.WriteBadRequest(w, "missing "+middleware.SessionHeader+" header")
		return
	}
	result, err := s.committer.ReviewAndSave(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, directory.ErrDuplicateName) {
			httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("Review and save aborted")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, result.Status.HTTPCode(), result)
}
