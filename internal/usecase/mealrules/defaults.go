package mealrules

import (
	"context"
	"fmt"

	"canteen-rfid/internal/domain"
)

// DefaultRules возвращает стартовый набор правил столовой.
func DefaultRules() []domain.MealRule {
	return []domain.MealRule{
		{
			Name:           "Frühstück",
			MealType:       domain.MealBreakfast,
			StartTimeLocal: domain.NewTimeOfDay(7, 0, 0),
			EndTimeLocal:   domain.NewTimeOfDay(10, 0, 0),
			DaysOfWeekMask: domain.AllDays,
			Priority:       10,
			IsActive:       true,
		},
		{
			Name:           "Mittagessen",
			MealType:       domain.MealLunch,
			StartTimeLocal: domain.NewTimeOfDay(10, 0, 0),
			EndTimeLocal:   domain.NewTimeOfDay(15, 0, 0),
			DaysOfWeekMask: domain.AllDays,
			Priority:       9,
			IsActive:       true,
		},
		{
			Name:           "Abendessen",
			MealType:       domain.MealDinner,
			StartTimeLocal: domain.NewTimeOfDay(15, 0, 0),
			EndTimeLocal:   domain.NewTimeOfDay(20, 0, 0),
			DaysOfWeekMask: domain.AllDays,
			Priority:       8,
			IsActive:       true,
		},
	}
}

// SeedDefaults создаёт правила по умолчанию, только если таблица пуста.
// Возвращает число созданных правил.
func SeedDefaults(ctx context.Context, repo domain.MealRuleRepo) (int, error) {
	n, err := repo.CountMealRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("подсчёт правил: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	created := 0
	for _, rule := range DefaultRules() {
		if _, err := repo.CreateMealRule(ctx, rule); err != nil {
			return created, fmt.Errorf("создание правила %s: %w", rule.Name, err)
		}
		created++
	}
	return created, nil
}
