package domain

import "time"

// StampRecord — запись об отметке, которую ридер отправляет на сервер
// и при недоступности сервера складывает в локальную очередь.
type StampRecord struct {
	UID          string            `json:"uid"`
	ReaderID     string            `json:"readerId"`
	TimestampUTC *time.Time        `json:"timestampUtc,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// PingRequest — тело запроса проверки связи ридера.
type PingRequest struct {
	ReaderID string `json:"readerId"`
}

// PingResponse — ответ сервера на проверку связи.
type PingResponse struct {
	Status        string    `json:"status"`
	ServerTimeUTC time.Time `json:"serverTimeUtc"`
}

// StampEvent публикуется во внешнюю очередь после сохранения отметки.
type StampEvent struct {
	StampID        string    `json:"stamp_id"`
	ReaderID       string    `json:"reader_id"`
	UID            string    `json:"uid"`
	MealType       MealType  `json:"meal_type"`
	UserID         string    `json:"user_id,omitempty"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
	TimestampLocal time.Time `json:"timestamp_local"`
}

// NewStampEvent строит событие по сохранённой отметке.
func NewStampEvent(s Stamp) StampEvent {
	ev := StampEvent{
		StampID:        s.ID.String(),
		ReaderID:       s.ReaderID,
		UID:            s.UIDRaw,
		MealType:       s.MealType,
		TimestampUTC:   s.TimestampUTC,
		TimestampLocal: s.TimestampLocal,
	}
	if s.UserID != nil {
		ev.UserID = s.UserID.String()
	}
	return ev
}
