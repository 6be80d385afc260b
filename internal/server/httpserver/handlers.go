package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

// Authenticator resolves a session token to the active account it was issued
// for.
type Authenticator interface {
	Authenticate(ctx context.Context, db dbx.DBTX, token string, claimedID int64) (*models.Account, error)
}

// UserService is the account side used by the handlers.
type UserService interface {
	Register(ctx context.Context, db dbx.Handle, email, password string) (*services.Session, error)
	Login(ctx context.Context, db dbx.DBTX, email, password string) (*services.Session, error)
	Update(ctx context.Context, db dbx.Handle, actor *models.Account, changes services.AccountChanges) (*models.Account, error)
	Deactivate(ctx context.Context, db dbx.DBTX, actor *models.Account, email string) (*models.Account, error)
	Search(ctx context.Context, db dbx.DBTX, fragment string) ([]*models.Account, error)
	RequestPasswordReset(ctx context.Context, db dbx.DBTX, actor *models.Account, email string) (*models.ResetToken, error)
	ChangePassword(ctx context.Context, db dbx.Handle, actor *models.Account, email, token, password string) (*models.ResetToken, error)
	Verify(ctx context.Context, db dbx.Handle, accountID int64, token string) (*models.Account, error)
}

// UserDataService manages a user's uploaded objects.
type UserDataService interface {
	Upload(ctx context.Context, db dbx.DBTX, owner *models.Account, meta services.UploadMeta, body []byte) (*models.UserData, error)
	Search(ctx context.Context, db dbx.DBTX, owner *models.Account, f models.UserDataFilter) ([]*models.UserData, error)
	Update(ctx context.Context, db dbx.DBTX, owner *models.Account, dataID int64, upd models.UserDataUpdate) (*models.UserData, error)
}

// Handlers holds the endpoint implementations.
type Handlers struct {
	auth  Authenticator
	users UserService
	data  UserDataService
}

func NewHandlers(auth Authenticator, users UserService, data UserDataService) *Handlers {
	return &Handlers{auth: auth, users: users, data: data}
}

// Routes returns the dispatch table. Order matters for prefix routes.
func (h *Handlers) Routes() []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/user/password/reset", Resource: "auth", Operation: "create_otp", Handler: h.issueReset},
		{Method: http.MethodPost, Path: "/user/password/change", Resource: "auth", Operation: "consume_otp", Handler: h.consumeReset},
		{Method: http.MethodPost, Path: "/user/data/search", Resource: "data", Operation: "search_data", Handler: h.searchData},
		{Method: http.MethodPost, Path: "/user/data", Resource: "data", Operation: "upload", Handler: h.uploadData},
		{Method: http.MethodPut, Path: "/user/data", Resource: "data", Operation: "update_data", Handler: h.updateData},
		{Method: http.MethodPost, Path: "/user/search", Resource: "user", Operation: "search", Handler: h.searchUsers},
		{Method: http.MethodGet, Path: "/user/verify", Resource: "verify", Operation: "consume_verify", Handler: h.verify},
		{Method: http.MethodGet, Path: "/user/", Prefix: true, Resource: "user", Operation: "get", Handler: h.getUser},
		{Method: http.MethodPost, Path: "/user", Resource: "user", Operation: "create", Handler: h.createUser},
		{Method: http.MethodPut, Path: "/user", Resource: "user", Operation: "update", Handler: h.updateUser},
		{Method: http.MethodDelete, Path: "/user", Resource: "user", Operation: "delete", Handler: h.deactivateUser},
		{Method: http.MethodPost, Path: "/login", Resource: "auth", Operation: "login", Handler: h.login},
	}
}

// authenticate checks the session token header against claimedID. A missing
// header is rejected without touching the codec.
func (h *Handlers) authenticate(r *http.Request, rc *RequestContext, claimedID int64) (*models.Account, error) {
	token := r.Header.Get(rc.Config.TokenHeader)
	if strings.TrimSpace(token) == "" {
		rc.Logger.Warn(r.Context(), "missing session token header", "account_id", claimedID)
		return nil, common.ErrorUnauthorized
	}
	return h.auth.Authenticate(r.Context(), rc.DB, token, claimedID)
}

func sessionResponse(s *services.Session, msg string) accountResponse {
	resp := newAccountResponse(s.Account, msg)
	resp.Token = s.Token
	resp.ExpDate = formatTime(s.ExpiresAt)
	return resp
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.users.Register(r.Context(), rc.DB, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(sess, "user created"))
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.users.Login(r.Context(), rc.DB, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(sess, "login success"))
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/user/"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, fmt.Errorf("%w: invalid user id", common.ErrorMalformed))
		return
	}
	a, err := h.authenticate(r, rc, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(a, "user found"))
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	changes := services.AccountChanges{Email: req.Email, Password: req.Password, State: req.State, Role: req.Role}
	if changes == (services.AccountChanges{}) {
		writeError(w, fmt.Errorf("%w: nothing to update", common.ErrorMalformed))
		return
	}
	actor, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.users.Update(r.Context(), rc.DB, actor, changes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(a, "user updated"))
}

func (h *Handlers) deactivateUser(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req userEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.users.Deactivate(r.Context(), rc.DB, actor, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(a, "user deactivated"))
}

func (h *Handlers) searchUsers(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req userSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.authenticate(r, rc, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	found, err := h.users.Search(r.Context(), rc.DB, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := accountListResponse{Users: make([]accountResponse, 0, len(found)), Msg: "search complete"}
	for _, a := range found {
		resp.Users = append(resp.Users, newAccountResponse(a, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) issueReset(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req userEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.users.RequestPasswordReset(r.Context(), rc.DB, actor, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resetIssuedResponse{
		UserID:  t.UserID,
		Token:   t.Token,
		ExpDate: formatTime(t.ExpiresAt),
		Msg:     "password reset issued",
	})
}

func (h *Handlers) consumeReset(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.users.ChangePassword(r.Context(), rc.DB, actor, req.Email, req.Token, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetConsumedResponse{UserID: t.UserID, OtpID: t.ID, Msg: "password changed"})
}

func (h *Handlers) verify(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("u"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid user id", common.ErrorMalformed))
		return
	}
	req := verifyRequest{UserID: id, Token: q.Get("t")}
	if err := validateStruct(&req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.users.Verify(r.Context(), rc.DB, req.UserID, req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(a, "user verified"))
}

func (h *Handlers) uploadData(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	id, err := strconv.ParseInt(r.Header.Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid user_id header", common.ErrorMalformed))
		return
	}
	req := uploadRequest{
		UserID:   id,
		Filename: r.Header.Get("filename"),
		DataType: r.Header.Get("data_type"),
		Comments: r.Header.Get("comments"),
		Encoding: r.Header.Get("encoding"),
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rc.Config.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, errPayloadTooLarge)
			return
		}
		writeError(w, fmt.Errorf("%w: unreadable body", common.ErrorMalformed))
		return
	}
	if len(body) == 0 {
		writeError(w, fmt.Errorf("%w: empty body", common.ErrorMalformed))
		return
	}

	d, err := h.data.Upload(r.Context(), rc.DB, owner, services.UploadMeta{
		Filename: req.Filename,
		DataType: req.DataType,
		Comments: req.Comments,
		Encoding: req.Encoding,
	}, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserDataResponse(d, "data uploaded"))
}

func (h *Handlers) searchData(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req dataSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	owner, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	found, err := h.data.Search(r.Context(), rc.DB, owner, req.filter())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := userDataListResponse{Data: make([]userDataResponse, 0, len(found)), Msg: "search complete"}
	for _, d := range found {
		resp.Data = append(resp.Data, newUserDataResponse(d, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) updateData(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	var req dataUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	upd := req.update()
	if upd.Empty() {
		writeError(w, fmt.Errorf("%w: nothing to update", common.ErrorMalformed))
		return
	}
	owner, err := h.authenticate(r, rc, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.data.Update(r.Context(), rc.DB, owner, req.DataID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserDataResponse(d, "data updated"))
}
