package config

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// windowsZones сопоставляет идентификаторы Windows с IANA для поясов,
// в которых работают столовые.
var windowsZones = map[string]string{
	"w. europe standard time":      "Europe/Berlin",
	"central europe standard time": "Europe/Budapest",
	"romance standard time":        "Europe/Paris",
	"gmt standard time":            "Europe/London",
	"e. europe standard time":      "Europe/Chisinau",
	"fle standard time":            "Europe/Kyiv",
	"russian standard time":        "Europe/Moscow",
	"utc":                          "UTC",
}

// LoadLocation загружает часовой пояс, прощая регистр и пробелы вместо
// подчёркиваний ("europe/berlin", "America/New York"). Понимает и
// идентификаторы Windows ("W. Europe Standard Time").
func LoadLocation(raw string) (*time.Location, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, ErrInvalidTimezone
	}
	if iana, ok := windowsZones[strings.ToLower(candidate)]; ok {
		candidate = iana
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if loc, err := time.LoadLocation(candidate); err == nil {
		return loc, nil
	}

	parts := strings.Split(strings.ToLower(candidate), "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	if loc, err := time.LoadLocation(strings.Join(parts, "/")); err == nil {
		return loc, nil
	}
	return nil, ErrInvalidTimezone
}
