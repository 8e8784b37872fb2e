// Package transport builds the HTTP clients used to reach the local backends.
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DefaultTimeout bounds a single request when the caller does not pass one.
const DefaultTimeout = 5 * time.Second

// NewClient returns an HTTP client with a bounded timeout. Idle HTTP/2
// connections are pinged and dropped within the same budget.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t, _, err := newTransport(http.DefaultTransport.(*http.Transport), timeout)
	if err != nil {
		slog.Warn("HTTP/2 transport setup failed, using net/http defaults", "error", err)
	}

	return &http.Client{
		Transport: t,
		Timeout:   timeout,
	}
}

// newTransport клонирует base и настраивает на клоне HTTP/2. При ошибке
// настройки h2 транспорт остаётся рабочим.
func newTransport(base *http.Transport, timeout time.Duration) (*http.Transport, *http2.Transport, error) {
	t := base.Clone()
	t.MaxIdleConnsPerHost = 4
	t.IdleConnTimeout = 90 * time.Second
	// клон мог унаследовать уже зарегистрированный "h2"
	t.TLSNextProto = nil

	h2, err := http2.ConfigureTransports(t)
	if err != nil {
		return t, nil, err
	}
	configureH2(h2, timeout)
	return t, h2, nil
}

// configureH2 включает пинги простаивающих соединений: ReadIdleTimeout после
// тишины, PingTimeout на ответ
func configureH2(h2 *http2.Transport, timeout time.Duration) {
	h2.ReadIdleTimeout = timeout
	h2.PingTimeout = timeout / 2
	h2.WriteByteTimeout = timeout
}
