// Package carriers содержит контракт стратегий получения трекинга
// и цепочку фолбэков поверх них.
package carriers

import (
	"context"
	"time"
)

// RawEvent — событие как его отдал перевозчик, до нормализации.
// Time — время события по данным перевозчика, не время запроса.
type RawEvent struct {
	Time        time.Time
	Description string
	Location    string
}

// RawResult — контракт передачи между стратегией и reconciler/normalizer.
// Результат без статуса и без событий считается NoData на уровне селектора.
type RawResult struct {
	Status string
	Events []RawEvent
}

func (r RawResult) Empty() bool {
	return r.Status == "" && len(r.Events) == 0
}

// Strategy — один конкретный способ вытащить данные с публичной
// поверхности перевозчика (API, скрейп HTML, headless-браузер...).
// Fetch выполняет только сетевой I/O, состояние не трогает.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, trackNumber string) (RawResult, error)
}

// Carrier — перевозчик: предикат определения по номеру
// и приоритетный список стратегий (дешёвые/надёжные первыми).
type Carrier interface {
	Code() string
	Match(trackNumber string) bool
	Strategies() []Strategy
}

// CredentialProvider отдаёт непрозрачный credential/cookie blob для
// перевозчиков с авторизацией. Получение/обновление кредов — вне ядра.
type CredentialProvider interface {
	Credential(carrierCode string) (string, bool)
}

// StaticCredentials — простейший provider поверх map (конфиг).
type StaticCredentials map[string]string

func (s StaticCredentials) Credential(carrierCode string) (string, bool) {
	v, ok := s[carrierCode]
	if v == "" {
		return "", false
	}
	return v, ok
}
