package carriers

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind — таксономия отказов одной попытки (см. резолвер про агрегацию).
type Kind int

const (
	// KindTransport: сеть/таймаут/не-2xx.
	KindTransport Kind = iota
	// KindDecode: транспорт ок, тело не разбирается.
	KindDecode
	// KindNoData: транспорт ок, но ни статуса, ни событий —
	// обычно уехала вёрстка/селекторы.
	KindNoData
	// KindAuthRequired: протухла сессия/кред. Должен дойти до вызывающего
	// отдельно: лечится только повторной авторизацией пользователя.
	KindAuthRequired
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindNoData:
		return "no_data"
	case KindAuthRequired:
		return "auth_required"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure — типизированный отказ стратегии. Snippet — диагностический
// кусок сырого ответа для починки селекторов, в логи целиком не пишем.
type Failure struct {
	Kind    Kind
	Msg     string
	Snippet string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Cause }

func NewFailure(kind Kind, msg string) *Failure {
	return &Failure{Kind: kind, Msg: msg}
}

func WrapFailure(kind Kind, err error, msg string) *Failure {
	return &Failure{Kind: kind, Msg: msg, Cause: err}
}

func (f *Failure) WithSnippet(s string) *Failure {
	const max = 400
	if len(s) > max {
		s = s[:max]
	}
	f.Snippet = s
	return f
}

// KindOf классифицирует произвольную ошибку попытки или агрегата.
// Всё нетипизированное (в т.ч. ctx cancel/deadline) считаем транспортом.
func KindOf(err error) Kind {
	var ex *Exhausted
	if errors.As(err, &ex) {
		return ex.Kind()
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransport
}

// актионабельность для агрегата: auth > no_data > decode > transport.
func severity(k Kind) int {
	switch k {
	case KindAuthRequired:
		return 3
	case KindNoData:
		return 2
	case KindDecode:
		return 1
	default:
		return 0
	}
}

// Attempt — диагностическая запись одной неудачной попытки.
type Attempt struct {
	Carrier  string
	Strategy string
	Kind     Kind
	Err      error
}

// Exhausted — агрегатный отказ: все стратегии всех кандидатов не дали
// результата. Kind() отдаёт самый актионабельный вид из встреченных,
// независимо от порядка попыток.
type Exhausted struct {
	TrackNumber string
	Attempts    []Attempt
}

func (e *Exhausted) Kind() Kind {
	best := KindTransport
	for _, a := range e.Attempts {
		if severity(a.Kind) > severity(best) {
			best = a.Kind
		}
	}
	return best
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("all strategies failed for %q (%d attempts, worst=%s)",
		e.TrackNumber, len(e.Attempts), e.Kind())
}
