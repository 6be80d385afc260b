package httpserver

import (
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=4"`
}

type updateUserRequest struct {
	UserID   int64   `json:"user_id" validate:"required,gt=0"`
	Email    *string `json:"email,omitempty" validate:"omitnil,email"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=4"`
	State    *int    `json:"state,omitempty" validate:"omitnil,oneof=0 1"`
	Role     *string `json:"role,omitempty" validate:"omitnil,oneof=user admin"`
}

type userEmailRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Email  string `json:"email" validate:"required,email"`
}

type userSearchRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Email  string `json:"email" validate:"required,max=256"`
}

type changePasswordRequest struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Email    string `json:"email" validate:"required,email"`
	Token    string `json:"token" validate:"required,min=4,max=256"`
	Password string `json:"password" validate:"required,min=4"`
}

type verifyRequest struct {
	UserID int64  `json:"u" validate:"required,gt=0"`
	Token  string `json:"t" validate:"required,min=20,max=256"`
}

type uploadRequest struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Filename string `json:"filename" validate:"required,max=512"`
	DataType string `json:"data_type" validate:"max=128"`
	Comments string `json:"comments" validate:"max=2048"`
	Encoding string `json:"encoding" validate:"max=64"`
}

type dataSearchRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	DataID     *int64 `json:"data_id,omitempty" validate:"omitnil,gt=0"`
	Filename   string `json:"filename" validate:"max=512"`
	DataType   string `json:"data_type" validate:"max=128"`
	Comments   string `json:"comments" validate:"max=2048"`
	Encoding   string `json:"encoding" validate:"max=64"`
	AboveBytes *int64 `json:"above_bytes,omitempty" validate:"omitnil,gte=0"`
	BelowBytes *int64 `json:"below_bytes,omitempty" validate:"omitnil,gte=0"`
}

func (r dataSearchRequest) filter() models.UserDataFilter {
	return models.UserDataFilter{
		DataID:     r.DataID,
		Filename:   r.Filename,
		DataType:   r.DataType,
		Comments:   r.Comments,
		Encoding:   r.Encoding,
		AboveBytes: r.AboveBytes,
		BelowBytes: r.BelowBytes,
	}
}

type dataUpdateRequest struct {
	UserID   int64   `json:"user_id" validate:"required,gt=0"`
	DataID   int64   `json:"data_id" validate:"required,gt=0"`
	Filename *string `json:"filename,omitempty" validate:"omitnil,min=1,max=512"`
	DataType *string `json:"data_type,omitempty" validate:"omitnil,max=128"`
	Comments *string `json:"comments,omitempty" validate:"omitnil,max=2048"`
	Encoding *string `json:"encoding,omitempty" validate:"omitnil,max=64"`
}

func (r dataUpdateRequest) update() models.UserDataUpdate {
	return models.UserDataUpdate{
		Filename: r.Filename,
		DataType: r.DataType,
		Comments: r.Comments,
		Encoding: r.Encoding,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(common.TimeLayout)
}

type accountResponse struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	State     int    `json:"state"`
	Verified  int    `json:"verified"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpDate   string `json:"exp_date,omitempty"`
	Msg       string `json:"msg,omitempty"`
}

func newAccountResponse(a *models.Account, msg string) accountResponse {
	return accountResponse{
		UserID:    a.ID,
		Email:     a.Email,
		State:     a.State,
		Verified:  a.Verified,
		Role:      a.Role,
		CreatedAt: formatTime(a.CreatedAt),
		UpdatedAt: formatTime(a.UpdatedAt),
		Msg:       msg,
	}
}

type accountListResponse struct {
	Users []accountResponse `json:"users"`
	Msg   string            `json:"msg"`
}

type resetIssuedResponse struct {
	UserID  int64  `json:"user_id"`
	Token   string `json:"token"`
	ExpDate string `json:"exp_date"`
	Msg     string `json:"msg"`
}

type resetConsumedResponse struct {
	UserID int64  `json:"user_id"`
	OtpID  int64  `json:"otp_id"`
	Msg    string `json:"msg"`
}

type userDataResponse struct {
	DataID      int64  `json:"data_id"`
	UserID      int64  `json:"user_id"`
	Filename    string `json:"filename"`
	DataType    string `json:"data_type"`
	SizeInBytes int64  `json:"size_in_bytes"`
	Comments    string `json:"comments"`
	Encoding    string `json:"encoding"`
	Location    string `json:"location"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Msg         string `json:"msg,omitempty"`
}

func newUserDataResponse(d *models.UserData, msg string) userDataResponse {
	return userDataResponse{
		DataID:      d.ID,
		UserID:      d.UserID,
		Filename:    d.Filename,
		DataType:    d.DataType,
		SizeInBytes: d.SizeInBytes,
		Comments:    d.Comments,
		Encoding:    d.Encoding,
		Location:    d.Location,
		CreatedAt:   formatTime(d.CreatedAt),
		UpdatedAt:   formatTime(d.UpdatedAt),
		Msg:         msg,
	}
}

type userDataListResponse struct {
	Data []userDataResponse `json:"data"`
	Msg  string             `json:"msg"`
}
