// Пакет notify — клиент внешнего сервиса уведомлений.
// Доставка сообщений вне зоны ответственности: сервису передаётся
// только событие с идентификаторами, без персональных данных.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// EventTrackingStopped — тип события остановки сопровождения.
const EventTrackingStopped = "visitor.tracking_stopped"

// ErrRejected — сервис уведомлений ответил ошибкой.
var ErrRejected = errors.New("сервис уведомлений отклонил событие")

// StoppedEvent — событие остановки сопровождения посетителя.
type StoppedEvent struct {
	Event         string    `json:"event"`
	VisitorID     string    `json:"visitorId"`
	City          string    `json:"city"`
	AssignedMonth string    `json:"assignedMonth"`
	StoppedAt     time.Time `json:"stoppedAt"`
}

// Client — HTTP-клиент сервиса уведомлений на resty.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New создаёт клиент. baseURL — адрес сервиса (PA_NOTIFY_URL).
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		logger: logger.With(slog.String("component", "notify")),
	}
}

// VisitorStopped отправляет событие остановки сопровождения.
func (c *Client) VisitorStopped(ctx context.Context, e StoppedEvent) error {
	if e.Event == "" {
		e.Event = EventTrackingStopped
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(e).
		Post("/events")
	if err != nil {
		return fmt.Errorf("ошибка отправки уведомления: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode())
	}
	c.logger.Debug("Уведомление отправлено",
		slog.String("event", e.Event),
		slog.String("visitor_id", e.VisitorID),
	)
	return nil
}

// Close закрывает простаивающие соединения.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

// Nop — уведомления отключены (PA_NOTIFY_URL не задан).
type Nop struct{}

// VisitorStopped ничего не делает.
func (Nop) VisitorStopped(context.Context, StoppedEvent) error { return nil }
