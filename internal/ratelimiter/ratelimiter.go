package ratelimiter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram allows about one message per second to a private chat and 20 per minute
// to a group.
const (
	privateChatRate = time.Second
	groupChatRate   = 3 * time.Second
	queueSize       = 100
)

type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type request struct {
	ctx      context.Context
	params   *bot.SendMessageParams
	response chan response
}

type response struct {
	message *models.Message
	err     error
}

// RateLimiter serializes outgoing messages and spaces them out per chat.
type RateLimiter struct {
	sender      Sender
	queue       chan request
	lastSent    map[int64]time.Time
	privateRate time.Duration
	groupRate   time.Duration
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	log         *slog.Logger
}

func New(sender Sender, log *slog.Logger) *RateLimiter {
	return newRateLimiter(sender, privateChatRate, groupChatRate, log)
}

func newRateLimiter(sender Sender, privateRate, groupRate time.Duration, log *slog.Logger) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		sender:      sender,
		queue:       make(chan request, queueSize),
		lastSent:    make(map[int64]time.Time),
		privateRate: privateRate,
		groupRate:   groupRate,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		log:         log,
	}

	go rl.processQueue()

	return rl
}

func (rl *RateLimiter) SendMessage(
	ctx context.Context,
	params *bot.SendMessageParams,
) (*models.Message, error) {
	if err := rl.ctx.Err(); err != nil {
		return nil, err
	}

	req := request{
		ctx:      ctx,
		params:   params,
		response: make(chan response, 1),
	}

	select {
	case rl.queue <- req:
	case <-rl.ctx.Done():
		return nil, rl.ctx.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.response:
		return resp.message, resp.err
	case <-rl.done:
		select {
		case resp := <-req.response:
			return resp.message, resp.err
		default:
			return nil, rl.ctx.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop fails every queued message and waits for the queue worker to exit.
func (rl *RateLimiter) Stop() {
	rl.cancel()
	<-rl.done
}

func (rl *RateLimiter) processQueue() {
	defer close(rl.done)

	for {
		select {
		case req := <-rl.queue:
			rl.handleRequest(req)
		case <-rl.ctx.Done():
			for {
				select {
				case req := <-rl.queue:
					req.response <- response{err: rl.ctx.Err()}
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(req request) {
	chatID := getChatID(req.params)

	rl.mu.Lock()
	lastSent, exists := rl.lastSent[chatID]
	rl.mu.Unlock()

	if exists {
		delay := getDelay(rl.rate(chatID), lastSent)

		if delay > 0 {
			rl.log.DebugContext(req.ctx, "Rate limiting message",
				"chatID", chatID,
				"delay", delay,
				"queueLen", len(rl.queue))

			select {
			case <-time.After(delay):
			case <-rl.ctx.Done():
				req.response <- response{err: rl.ctx.Err()}
				return
			case <-req.ctx.Done():
				req.response <- response{err: req.ctx.Err()}
				return
			}
		}
	}

	message, err := rl.sender.SendMessage(req.ctx, req.params)

	rl.mu.Lock()
	rl.lastSent[chatID] = time.Now()
	rl.mu.Unlock()

	req.response <- response{
		message: message,
		err:     err,
	}
}

func (rl *RateLimiter) rate(chatID int64) time.Duration {
	if chatID < 0 {
		return rl.groupRate
	}

	return rl.privateRate
}

// getChatID returns 0 for channel usernames, which share one slot.
func getChatID(params *bot.SendMessageParams) int64 {
	if params == nil {
		return 0
	}

	switch id := params.ChatID.(type) {
	case int64:
		return id
	case int:
		return int64(id)
	case string:
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0
		}

		return parsed
	default:
		return 0
	}
}

func getDelay(rate time.Duration, lastSent time.Time) time.Duration {
	elapsed := time.Since(lastSent)

	return max(rate-elapsed, 0)
}
