// Package fake — детерминированная заглушка перевозчика для дев-стенда и
// тестов. Статус считается по хэшу номера: часть треков «доставлена».
package fake

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/BearBump/ParcelScope/internal/carriers"
)

const Code = "FAKE"

type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Code() string { return Code }

func (c *Client) Match(trackNumber string) bool {
	return strings.HasPrefix(trackNumber, "FK-")
}

func (c *Client) Strategies() []carriers.Strategy {
	return []carriers.Strategy{&strategy{}}
}

type strategy struct{}

func (s *strategy) Name() string { return "fake" }

func (s *strategy) Fetch(ctx context.Context, trackNumber string) (carriers.RawResult, error) {
	now := time.Now().UTC()

	h := fnv.New32a()
	_, _ = h.Write([]byte(trackNumber))
	v := h.Sum32()

	// 20% треков считаем доставленными.
	status := "EN TRANSITO"
	if v%5 == 0 {
		status = "ENTREGADO"
	}

	return carriers.RawResult{
		Status: status,
		Events: []carriers.RawEvent{
			{Time: now.Add(-48 * time.Hour), Description: "Recogido", Location: "Bogotá"},
			{Time: now, Description: status, Location: "Bogotá"},
		},
	}, nil
}
