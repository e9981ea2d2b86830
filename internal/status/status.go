// Package status нормализует сырые статусы перевозчиков в общую таксономию.
//
// Порядок правил поведенчески значим и поддерживается руками:
// первое совпадение выигрывает. Специфичные фразы стоят раньше общих —
// например, "NOVEDAD"/инцидент проверяется до общего "PENDIENTE",
// "EN REPARTO" до "ENTREGADO", а отрицания ("NO ENTREGADO") строго
// раньше самих ключей доставки, которые они содержат подстрокой.
package status

import (
	"strings"
	"unicode"

	"github.com/BearBump/ParcelScope/internal/models"
)

type rule struct {
	status   string
	keywords []string
}

var deliveredKeywords = []string{"ENTREGADO", "ENTREGADA", "ENTREGUE", "DELIVERED"}

// Несостоявшаяся доставка. Каждый ключ содержит ключ доставки подстрокой,
// поэтому проверяется до deliveredKeywords — и в rules, и в IsDelivered.
var notDeliveredKeywords = []string{"NO ENTREGAD", "NOT DELIVERED", "SIN ENTREGAR"}

// rules — упорядоченный список, НЕ map: приоритет важен.
var rules = []rule{
	{models.StatusReturned, []string{"DEVOLUC", "DEVUELT", "RETURN"}},
	{models.StatusOutForDelivery, []string{"OUT FOR DELIVERY", "EN REPARTO", "REPARTO", "SALIO A ENTREGA", "EN DISTRIBUCION"}},
	{models.StatusException, notDeliveredKeywords},
	{models.StatusDelivered, deliveredKeywords},
	{models.StatusException, []string{"NOVEDAD", "INCIDEN", "EXCEPTION", "RETENID", "SINIESTR"}},
	{models.StatusPreShipment, []string{"GUIA GENERADA", "LABEL CREATED", "PRE-SHIP", "INFORMACION RECIBIDA", "SHIPMENT INFORMATION"}},
	{models.StatusInTransit, []string{"TRANSITO", "TRANSIT", "EN CAMINO", "TRAYECTO", "RECOGID", "PICKED UP", "ADMITID", "PROCESAMIENTO", "CENTRO LOGISTICO", "LLEGO A"}},
	{models.StatusPending, []string{"PENDIENTE", "PENDING", "EN ESPERA", "AWAITING"}},
}

// Normalize — тотальная функция: не падает ни на каком входе.
// Несовпавший непустой статус возвращается как passthrough с капитализацией,
// чтобы не терять нюанс перевозчика в UI; пустой -> UNKNOWN.
func Normalize(raw string) string {
	key := foldKey(raw)
	if key == "" {
		return models.StatusUnknown
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(key, kw) {
				return r.status
			}
		}
	}
	return capitalize(raw)
}

// IsDelivered — грубая проверка "доставлено?" для статуса в любом виде
// (нормализованном или сыром).
func IsDelivered(s string) bool {
	if s == models.StatusDelivered {
		return true
	}
	key := foldKey(s)
	for _, kw := range notDeliveredKeywords {
		if strings.Contains(key, kw) {
			return false
		}
	}
	for _, kw := range deliveredKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// IsTerminal: по таким статусам перевозчика больше не опрашиваем.
func IsTerminal(s string) bool {
	return s == models.StatusDelivered || s == models.StatusReturned
}

var accentFold = strings.NewReplacer(
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
)

func foldKey(s string) string {
	return accentFold.Replace(strings.ToUpper(strings.TrimSpace(s)))
}

func capitalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
