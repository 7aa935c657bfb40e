package suggest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/user/moovierec/internal/metrics"
)

// BreakerSuggester 为推荐源加熔断：上游持续失败时快速失败，不拖慢整个推荐请求
type BreakerSuggester struct {
	next Suggester
	cb   *gobreaker.CircuitBreaker[[]string]
}

// BreakerSettings 熔断参数
type BreakerSettings struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

// DefaultBreakerSettings 1 分钟窗口内至少 5 次请求且失败率 >= 60% 时打开，30 秒后半开
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:         name,
		MinRequests:  5,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
	}
}

func NewBreakerSuggester(next Suggester, settings BreakerSettings, logger zerolog.Logger) *BreakerSuggester {
	metrics.SuggestBreakerState.WithLabelValues(settings.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// 调用方主动取消不计为上游故障
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("熔断器状态变化")
			metrics.SuggestBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &BreakerSuggester{next: next, cb: cb}
}

func (b *BreakerSuggester) Suggest(ctx context.Context, seedTitle string) ([]string, error) {
	return b.cb.Execute(func() ([]string, error) {
		return b.next.Suggest(ctx, seedTitle)
	})
}

// State 当前熔断状态
func (b *BreakerSuggester) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
