// Package catalog собирает реестр всех поддерживаемых перевозчиков.
// Порядок регистрации фиксирован и поведенчески значим: при
// неоднозначном числовом формате выигрывает более ранний.
package catalog

import (
	"github.com/BearBump/ParcelScope/internal/carriers"
	"github.com/BearBump/ParcelScope/internal/carriers/coordinadora"
	"github.com/BearBump/ParcelScope/internal/carriers/deprisa"
	"github.com/BearBump/ParcelScope/internal/carriers/envia"
	"github.com/BearBump/ParcelScope/internal/carriers/fake"
	"github.com/BearBump/ParcelScope/internal/carriers/interrapidisimo"
	"github.com/BearBump/ParcelScope/internal/carriers/servientrega"
)

type Options struct {
	// Переопределения базовых URL (тесты, staging). Пустые — прод-адреса.
	ServientregaBaseURL    string
	CoordinadoraBaseURL    string
	InterrapidisimoBaseURL string
	DeprisaBaseURL         string
	EnviaBaseURL           string

	// Креды авторизованных перевозчиков (DEPRISA).
	Credentials carriers.CredentialProvider

	// Headless-рендерер для envia; nil — остаётся только static-html.
	Renderer envia.PageRenderer

	// Включает локальный fake-перевозчик (демо, нагрузочные стенды).
	EnableFake bool
}

func NewRegistry(opts Options) *carriers.Registry {
	creds := opts.Credentials
	if creds == nil {
		creds = carriers.StaticCredentials{}
	}

	cs := []carriers.Carrier{
		servientrega.New(opts.ServientregaBaseURL),
		coordinadora.New(opts.CoordinadoraBaseURL),
		interrapidisimo.New(opts.InterrapidisimoBaseURL),
		deprisa.New(opts.DeprisaBaseURL, creds),
		envia.New(opts.EnviaBaseURL, opts.Renderer),
	}
	if opts.EnableFake {
		cs = append(cs, fake.New())
	}
	return carriers.NewRegistry(cs...)
}
