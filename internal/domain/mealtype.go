package domain

import (
	"fmt"
	"strings"
	"time"
)

// MealType — метка приёма пищи, присваиваемая отметке.
type MealType string

const (
	MealBreakfast MealType = "Breakfast"
	MealLunch     MealType = "Lunch"
	MealDinner    MealType = "Dinner"
	MealSnack     MealType = "Snack"
	// MealUnknown возвращается, когда ни одно правило не подошло.
	MealUnknown MealType = "Unknown"
)

var mealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack, MealUnknown}

// ParseMealType разбирает имя типа без учёта регистра.
func ParseMealType(raw string) (MealType, error) {
	candidate := strings.TrimSpace(raw)
	for _, mt := range mealTypes {
		if strings.EqualFold(string(mt), candidate) {
			return mt, nil
		}
	}
	return "", fmt.Errorf("неизвестный тип питания %q", raw)
}

// WeekdayMask — 7-битная маска дней недели, бит 0 соответствует воскресенью.
type WeekdayMask int

// AllDays включает все дни недели.
const AllDays WeekdayMask = 127

// MaskOf собирает маску из перечисленных дней.
func MaskOf(days ...time.Weekday) WeekdayMask {
	var mask WeekdayMask
	for _, d := range days {
		mask |= 1 << uint(d)
	}
	return mask
}

// Includes проверяет, установлен ли бит дня.
func (m WeekdayMask) Includes(day time.Weekday) bool {
	bit := WeekdayMask(1) << uint(day)
	return m&bit == bit
}
