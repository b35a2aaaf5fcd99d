package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hornet-trading/hornet/internal/evm"
)

// Topic identifies a class of events on the bus.
type Topic string

const (
	TopicNewToken     Topic = "mempool.new_token"
	TopicLargeTx      Topic = "mempool.large_tx"
	TopicSandwich     Topic = "mempool.sandwich"
	TopicPriceAlert   Topic = "tokens.price_alert"
	TopicTradeResult  Topic = "trade.result"
	TopicBotMode      Topic = "bot.mode"
	TopicBotRecovered Topic = "bot.recovered"
)

// Event is the envelope carried on every topic. Payload is one of the
// concrete event structs below.
type Event struct {
	ID      string    `json:"id"`
	Topic   Topic     `json:"topic"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// NewTokenEvent fires the first time a token is seen in the mempool.
type NewTokenEvent struct {
	Token  evm.Address `json:"token"`
	TxHash evm.Hash    `json:"tx_hash"`
}

// LargeTransactionEvent fires for pending swaps above the alert threshold.
type LargeTransactionEvent struct {
	Token     evm.Address     `json:"token"`
	TxHash    evm.Hash        `json:"tx_hash"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	IsBuy     bool            `json:"is_buy"`
}

// SandwichOpportunityEvent fires when a rankable victim is observed.
type SandwichOpportunityEvent struct {
	Token     evm.Address     `json:"token"`
	VictimTx  evm.Hash        `json:"victim_tx"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// PriceAlertEvent fires when a tracked token moves past the alert threshold.
type PriceAlertEvent struct {
	Token     evm.Address     `json:"token"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// TradeResultEvent fires after every buy/sell attempt settles.
type TradeResultEvent struct {
	Token    evm.Address `json:"token"`
	TxHash   evm.Hash    `json:"tx_hash"`
	Side     string      `json:"side"`
	Success  bool        `json:"success"`
	ErrorMsg string      `json:"error_msg,omitempty"`
}

// BotModeEvent fires on operating-mode transitions.
type BotModeEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SubsystemRecoveredEvent fires after a stuck subsystem is rebuilt and
// swapped in.
type SubsystemRecoveredEvent struct {
	Subsystem string `json:"subsystem"`
	Tokens    int    `json:"tokens"`
}

// ---------------------------------------------------------------------------
// Bus
// ---------------------------------------------------------------------------

// Bus is an in-process fan-out with bounded per-subscriber buffers.
// Publish never blocks: a subscriber that cannot keep up loses the
// event, and the loss is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Topic][]*Subscription
	closed  bool
	bufSize int

	published atomic.Int64
	dropped   atomic.Int64
}

// Subscription is one subscriber's bounded event feed.
type Subscription struct {
	topic   Topic
	ch      chan Event
	bus     *Bus
	once    sync.Once
	dropped atomic.Int64
}

// Events returns the subscriber's receive channel. It is closed by
// Unsubscribe or by Bus.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// New creates a bus whose subscribers buffer up to bufSize events each.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		subs:    make(map[Topic][]*Subscription),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber on topic.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan Event, b.bufSize),
		bus:   b,
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers payload to every subscriber of topic. Slow
// subscribers are skipped, never waited on.
func (b *Bus) Publish(topic Topic, payload any) {
	ev := Event{
		ID:      uuid.New().String()[:12],
		Topic:   topic,
		At:      time.Now(),
		Payload: payload,
	}

	b.mu.RLock()
	subs := b.subs[topic]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	b.published.Add(1)
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			log.Warn().
				Str("topic", string(topic)).
				Str("event_id", ev.ID).
				Msg("bus: subscriber buffer full, event dropped")
		}
	}
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subs = make(map[Topic][]*Subscription)
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.topic]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
	}
}
