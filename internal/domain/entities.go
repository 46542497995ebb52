package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reader описывает физический терминал считывания меток.
type Reader struct {
	ID          uuid.UUID  `json:"id"`
	ReaderID    string     `json:"readerId"`
	Name        string     `json:"name,omitempty"`
	Location    string     `json:"location,omitempty"`
	APIKeyHash  string     `json:"-"`
	IsActive    bool       `json:"isActive"`
	LastPingUTC *time.Time `json:"lastPingUtc,omitempty"`
	CreatedAt   time.Time  `json:"createdAtUtc"`
}

// IsOnline сообщает, выходил ли ридер на связь не позднее threshold до now.
func (r Reader) IsOnline(now time.Time, threshold time.Duration) bool {
	if r.LastPingUTC == nil {
		return false
	}
	return !r.LastPingUTC.Before(now.Add(-threshold))
}

// MealRule связывает временное окно с типом приёма пищи.
type MealRule struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	MealType       MealType    `json:"mealType"`
	StartTimeLocal TimeOfDay   `json:"startTimeLocal"`
	EndTimeLocal   TimeOfDay   `json:"endTimeLocal"`
	DaysOfWeekMask WeekdayMask `json:"daysOfWeekMask"`
	Priority       int         `json:"priority"`
	IsActive       bool        `json:"isActive"`
}

// User — сотрудник, которому может принадлежать метка.
type User struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PersonnelNo string    `json:"personnelNo"`
	UID         string    `json:"uid,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAtUtc"`
}

// FullName возвращает имя и фамилию через пробел.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Stamp — классифицированная отметка метки на ридере.
type Stamp struct {
	ID             uuid.UUID  `json:"id"`
	TimestampUTC   time.Time  `json:"timestampUtc"`
	TimestampLocal time.Time  `json:"timestampLocal"`
	UIDRaw         string     `json:"uidRaw"`
	ReaderID       string     `json:"readerId"`
	MealType       MealType   `json:"mealType"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	CreatedAt      time.Time  `json:"createdAtUtc"`
}
