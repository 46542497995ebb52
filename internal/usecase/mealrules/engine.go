package mealrules

import (
	"sort"
	"time"

	"canteen-rfid/internal/domain"
)

// Engine классифицирует локальное время по снимку правил.
// Снимок фиксируется при создании и дальше не меняется.
type Engine struct {
	rules []domain.MealRule
}

// NewEngine отбирает активные правила и сортирует их по убыванию приоритета.
// Правила с равным приоритетом сохраняют исходный порядок.
func NewEngine(rules []domain.MealRule) *Engine {
	active := make([]domain.MealRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
	return &Engine{rules: active}
}

// Resolve возвращает тип питания первого подходящего правила или MealUnknown.
func (e *Engine) Resolve(local time.Time) domain.MealType {
	t := domain.TimeOfDayOf(local)
	for _, rule := range e.rules {
		if !rule.DaysOfWeekMask.Includes(local.Weekday()) {
			continue
		}
		if withinWindow(rule.StartTimeLocal, rule.EndTimeLocal, t) {
			return rule.MealType
		}
	}
	return domain.MealUnknown
}

// Rules возвращает копию упорядоченного снимка.
func (e *Engine) Rules() []domain.MealRule {
	return append([]domain.MealRule(nil), e.rules...)
}

func withinWindow(start, end, t domain.TimeOfDay) bool {
	if start <= end {
		return t >= start && t <= end
	}
	// окно через полночь
	return t >= start || t <= end
}
