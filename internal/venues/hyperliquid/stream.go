package hyperliquid

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/models"
)

// quoteStaleness bounds how old a streamed book may be before GetQuote
// falls back to REST.
const quoteStaleness = 5 * time.Second

const (
	reconnectFloor   = time.Second
	reconnectCeiling = 30 * time.Second
)

// quoteStream keeps the latest top-of-book per coin from the public
// l2Book websocket channel. It reconnects with exponential backoff and
// re-subscribes after every reconnect.
type quoteStream struct {
	url    string
	coins  []string
	logger *logrus.Logger

	mu     sync.RWMutex
	quotes map[string]*models.PriceQuote

	done chan struct{}
	wg   sync.WaitGroup
}

func newQuoteStream(url string, coins []string, logger *logrus.Logger) *quoteStream {
	return &quoteStream{
		url:    url,
		coins:  coins,
		logger: logger,
		quotes: make(map[string]*models.PriceQuote),
		done:   make(chan struct{}),
	}
}

func (s *quoteStream) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *quoteStream) stop() {
	close(s.done)
	s.wg.Wait()
}

// latest returns a copy of the most recent book for coin, or false if
// the stream has nothing fresh.
func (s *quoteStream) latest(coin string) (*models.PriceQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quote, ok := s.quotes[coin]
	if !ok || time.Since(quote.Timestamp) > quoteStaleness {
		return nil, false
	}
	copied := *quote
	return &copied, true
}

func (s *quoteStream) run() {
	defer s.wg.Done()

	backoff := reconnectFloor
	for {
		select {
		case <-s.done:
			return
		default:
		}

		started := time.Now()
		if err := s.connectAndRead(); err != nil {
			s.logger.WithError(err).WithField("venue", venueName).Warn("Quote stream disconnected")
		}
		session := time.Since(started)

		select {
		case <-s.done:
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, session)
	}
}

// nextBackoff doubles the reconnect delay up to the ceiling. A session
// that stayed up past the ceiling counts as healthy and starts the
// progression over.
func nextBackoff(current, session time.Duration) time.Duration {
	if session >= reconnectCeiling {
		return reconnectFloor
	}
	next := current * 2
	if next > reconnectCeiling {
		next = reconnectCeiling
	}
	return next
}

func (s *quoteStream) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Debug("Failed to close stream connection")
		}
	}()

	for _, coin := range s.coins {
		subscription := map[string]any{
			"method": "subscribe",
			"subscription": map[string]string{
				"type": "l2Book",
				"coin": coin,
			},
		}
		if err := conn.WriteJSON(subscription); err != nil {
			return err
		}
	}
	s.logger.WithFields(logrus.Fields{
		"venue": venueName,
		"coins": len(s.coins),
	}).Info("Quote stream connected")

	// Close the socket when stop is requested so ReadMessage unblocks.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-s.done:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-readerDone:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				return err
			}
		}
		s.handleMessage(message)
	}
}

func (s *quoteStream) handleMessage(message []byte) {
	var envelope struct {
		Channel string         `json:"channel"`
		Data    l2BookResponse `json:"data"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		s.logger.WithError(err).Debug("Ignoring malformed stream message")
		return
	}
	if envelope.Channel != "l2Book" {
		return
	}

	quote, err := envelope.Data.toQuote()
	if err != nil {
		s.logger.WithError(err).WithField("coin", envelope.Data.Coin).Debug("Ignoring unusable book update")
		return
	}

	s.mu.Lock()
	s.quotes[envelope.Data.Coin] = quote
	s.mu.Unlock()
}
