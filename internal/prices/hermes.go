package prices

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const hermesSource = "pyth"

type hermesEnvelope struct {
	Parsed []hermesPriceUpdate `json:"parsed"`
}

type hermesPriceUpdate struct {
	ID    string              `json:"id"`
	Price hermesPriceSnapshot `json:"price"`
}

type hermesPriceSnapshot struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

func (s *Streamer) consumeHermesStream(ctx context.Context) error {
	streamURL, err := buildHermesStreamURL(s.cfg.HermesURL, s.cfg.FeedIDsBySymbol)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("build hermes request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("open hermes stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("open hermes stream: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	symbolByFeed := make(map[string]string, len(s.cfg.FeedIDsBySymbol))
	for symbol, feedID := range s.cfg.FeedIDsBySymbol {
		symbolByFeed[strings.ToLower(strings.TrimSpace(feedID))] = symbol
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024), 16*1024*1024)

	var eventData strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if eventData.Len() == 0 {
				continue
			}
			s.processHermesEvent(ctx, eventData.String(), symbolByFeed)
			eventData.Reset()
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if eventData.Len() > 0 {
			eventData.WriteByte('\n')
		}
		eventData.WriteString(payload)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read hermes stream: %w", err)
	}
	return io.EOF
}

func (s *Streamer) processHermesEvent(ctx context.Context, rawEvent string, symbolByFeed map[string]string) {
	payload := strings.TrimSpace(rawEvent)
	if payload == "" || payload == "[DONE]" {
		return
	}

	var event hermesEnvelope
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.log.Warn("bad hermes event", "err", err)
		return
	}

	now := time.Now().Unix()
	for _, update := range event.Parsed {
		feedID := strings.ToLower(strings.TrimSpace(update.ID))
		symbol, ok := symbolByFeed[feedID]
		if !ok {
			continue
		}

		price, err := scaleByExpo(update.Price.Price, update.Price.Expo)
		if err != nil || price <= 0 {
			continue
		}
		conf, err := scaleByExpo(update.Price.Conf, update.Price.Expo)
		if err != nil {
			conf = 0
		}

		publishTime := update.Price.PublishTime
		if publishTime <= 0 {
			publishTime = now
		}

		s.deliver(ctx, Tick{
			Symbol:      symbol,
			Source:      hermesSource,
			FeedID:      feedID,
			PublishTime: publishTime,
			Price:       price,
			Conf:        conf,
			Expo:        update.Price.Expo,
		})
	}
}

func buildHermesStreamURL(endpoint string, feedIDsBySymbol map[string]string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse hermes endpoint: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid hermes endpoint: %q", endpoint)
	}

	query := parsedURL.Query()
	query.Del("ids[]")
	for _, feedID := range feedIDsBySymbol {
		query.Add("ids[]", strings.ToLower(strings.TrimSpace(feedID)))
	}
	if strings.TrimSpace(query.Get("parsed")) == "" {
		query.Set("parsed", "true")
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

func scaleByExpo(raw string, expo int32) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty price")
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}

	if expo < 0 {
		return value / math.Pow10(int(-expo)), nil
	}
	if expo > 0 {
		return value * math.Pow10(int(expo)), nil
	}
	return value, nil
}
