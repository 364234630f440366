package api

import (
	"errors"
	"net/http"

	"github.com/wardenhq/warden/pkg/directory"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/status"
)

// writeMutatorOutcome maps a service call's result and error to an HTTP
// response. A duplicate-name error surfaces as a conflict; any other error
// is a server-side failure.
func (s *Server) writeMutatorOutcome(w http.ResponseWriter, r *http.Request, result status.Result, err error) {
	if err != nil {
		if errors.Is(err, directory.ErrDuplicateName) {
			httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("Mutation failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteResult(w, result)
}

func (s *Server) stageUserCreate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.users.Add(r.Context(), payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageUserUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.users.Update(r.Context(), id, payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageUserDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	result, err := s.users.Delete(r.Context(), id, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageUserRetire(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	result, err := s.users.Retire(r.Context(), id, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageUserUnlock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		ChangePasswordOnLogin bool `json:"changePasswordOnLogin"`
	}
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	result, err := s.users.Unlock(r.Context(), id, body.ChangePasswordOnLogin, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

func (s *Server) stageRoleCreate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.roles.Add(r.Context(), payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageRoleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.roles.Update(r.Context(), id, payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageRoleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	result, err := s.roles.Delete(r.Context(), id, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.roles.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

func (s *Server) stageDeviceCreate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.devices.Add(r.Context(), payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageDeviceUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.devices.Update(r.Context(), id, payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) stageDeviceDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	result, err := s.devices.Delete(r.Context(), id, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, devices)
}

func (s *Server) stageSettingUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUint64OrError(w, r, "id")
	if !ok {
		return
	}
	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	result, err := s.settings.Update(r.Context(), id, payload, false)
	s.writeMutatorOutcome(w, r, result, err)
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, settings)
}
