package models

import "time"

// UserData describes an object a user uploaded. The bytes live in object
// storage; Location is where (s3://bucket/key).
type UserData struct {
	ID          int64
	UserID      int64
	Filename    string
	DataType    string
	SizeInBytes int64
	Comments    string
	Encoding    string
	Location    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserDataFilter narrows a search over one user's data. Empty strings and
// nil bounds are ignored.
type UserDataFilter struct {
	DataID     *int64
	Filename   string
	DataType   string
	Comments   string
	Encoding   string
	AboveBytes *int64
	BelowBytes *int64
}

// UserDataUpdate lists the descriptive columns that may be changed.
type UserDataUpdate struct {
	Filename *string
	DataType *string
	Comments *string
	Encoding *string
}

// Empty reports whether the update would change nothing.
func (u UserDataUpdate) Empty() bool {
	return u.Filename == nil && u.DataType == nil && u.Comments == nil && u.Encoding == nil
}
