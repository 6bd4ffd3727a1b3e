package services

import (
	"errors"
	"log/slog"
	"net/http"

	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkUserExists(txn *gorm.DB, userId uuid.UUID) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

// publishChange announces a data change on the feed. Delivery failures are
// logged but never fail the request: the write already happened, consumers
// just reload later.
func publishChange(feed realtime.Feed, ownerId uuid.UUID, kind string) {
	if feed == nil {
		return
	}
	if err := feed.Publish(realtime.Event{OwnerId: ownerId, Kind: kind}); err != nil {
		slog.Error("error publishing change event", "owner_id", ownerId, "kind", kind, "error", err)
	}
}

// notifyUser writes a notification row and announces it on the feed.
func notifyUser(txn *gorm.DB, feed realtime.Feed, userId uuid.UUID, kind, title, message, link string) error {
	notification := schema.Notification{
		Id:      uuid.New(),
		UserId:  userId,
		Kind:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	}

	result := txn.Create(&notification)
	if result.Error != nil {
		slog.Error("sql error creating notification", "user_id", userId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	publishChange(feed, userId, realtime.KindNotifications)
	return nil
}
