package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	exchangeSource          = "binance"
	websocketReadLimitBytes = 1 << 20
)

// consumeExchangeStream follows the exchange's trade stream for one symbol
// and forwards each trade price as a tick. Symbols map to the USDT pair.
func (s *Streamer) consumeExchangeStream(ctx context.Context, symbol string) error {
	pair := strings.ToLower(symbol) + "usdt"
	endpoint := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s@trade", pair)

	conn, _, err := dialWebsocket(ctx, endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()
	stopClose := closeConnOnContextDone(ctx, conn)
	defer stopClose()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var message struct {
			EventType string `json:"e"`
			EventTime int64  `json:"E"`
			Price     string `json:"p"`
		}
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}
		if message.EventType != "trade" {
			continue
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(message.Price), 64)
		if err != nil || price <= 0 {
			continue
		}

		s.deliver(ctx, Tick{
			Symbol:      symbol,
			Source:      exchangeSource,
			FeedID:      pair,
			PublishTime: message.EventTime / 1000,
			Price:       price,
		})
	}
}

func dialWebsocket(ctx context.Context, endpoint string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, resp, err
	}
	conn.SetReadLimit(websocketReadLimitBytes)
	return conn, resp, nil
}

func closeConnOnContextDone(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
	}
}
