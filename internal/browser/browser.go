// Package browser — headless-рендер страниц для перевозчиков, которые
// рисуют трекинг на JS. Снаружи это одна блокирующая операция HTML(ctx, url)
// с таймаутом через ctx; внутри rod/Chromium.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
)

type Renderer struct {
	// Пауза после load: JS-страницам нужно время дорисовать историю.
	settle time.Duration

	mu      sync.Mutex
	l       *launcher.Launcher
	browser *rod.Browser
}

func New(settle time.Duration) *Renderer {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Renderer{settle: settle}
}

// Браузер поднимаем лениво при первом рендере: воркер без headless-стратегий
// не должен тащить Chromium вообще.
func (r *Renderer) ensureStarted() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	u, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "launch chromium")
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "connect browser")
	}

	r.l = l
	r.browser = b
	return b, nil
}

// HTML открывает url, ждёт load + settle и возвращает итоговый DOM.
// Страница закрывается на любом исходе, включая таймаут и отмену ctx.
func (r *Renderer) HTML(ctx context.Context, url string) (string, error) {
	b, err := r.ensureStarted()
	if err != nil {
		return "", err
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", errors.Wrap(err, "open page")
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", errors.Wrap(err, "navigate")
	}
	if err := page.WaitLoad(); err != nil {
		return "", errors.Wrap(err, "wait load")
	}

	select {
	case <-time.After(r.settle):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	html, err := page.HTML()
	if err != nil {
		return "", errors.Wrap(err, "read dom")
	}
	return html, nil
}

// Close гасит браузер и процесс Chromium. Идемпотентен.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.l != nil {
		r.l.Kill()
		r.l = nil
	}
}
