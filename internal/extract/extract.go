// Package extract turns raw page HTML into profile fields by prompting a
// language model for strict JSON.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-refinery/internal/metrics"
	"github.com/JakeFAU/profile-refinery/internal/profile"
)

// Mode selects which prompt is used.
type Mode int

// Extraction modes.
const (
	// ModeProfile asks for the full profile field list.
	ModeProfile Mode = iota
	// ModeMissing asks only for Request.Fields and ignores everything else.
	ModeMissing
)

// Default text budgets, in characters, for each mode.
const (
	DefaultProfileMaxChars = 6500
	DefaultMissingMaxChars = 6000
)

// Request describes one extraction.
type Request struct {
	Name   string
	HTML   string
	Fields []string
	Mode   Mode
}

// Extractor returns the fields found in a page.
type Extractor interface {
	Extract(ctx context.Context, req Request) (profile.Fields, error)
}

// Completer is a single-turn text model.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config tunes the LLM extractor.
type Config struct {
	ProfileMaxChars int
	MissingMaxChars int
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// LLM implements Extractor on top of a Completer, guarded by a circuit breaker.
type LLM struct {
	completer Completer
	breaker   *gobreaker.CircuitBreaker[string]
	cfg       Config
	logger    *zap.Logger
}

// NewLLM builds an extractor.
func NewLLM(completer Completer, cfg Config, logger *zap.Logger) *LLM {
	if cfg.ProfileMaxChars <= 0 {
		cfg.ProfileMaxChars = DefaultProfileMaxChars
	}
	if cfg.MissingMaxChars <= 0 {
		cfg.MissingMaxChars = DefaultMissingMaxChars
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := "extract-" + completer.Name()
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("extraction breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerState(name, int(to))
		},
	})
	return &LLM{
		completer: completer,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Extract implements Extractor. Pages with no visible text yield no fields
// and no error; unparseable model output yields profile.ErrExtractionMalformed.
func (l *LLM) Extract(ctx context.Context, req Request) (profile.Fields, error) {
	if req.Mode == ModeMissing && len(req.Fields) == 0 {
		return profile.Fields{}, nil
	}
	maxChars := l.cfg.ProfileMaxChars
	if req.Mode == ModeMissing {
		maxChars = l.cfg.MissingMaxChars
	}
	text, err := CleanText(req.HTML, maxChars)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return profile.Fields{}, nil
	}

	system, prompt := BuildPrompt(req, text)
	provider := l.completer.Name()
	start := time.Now()
	out, err := l.breaker.Execute(func() (string, error) {
		return l.completer.Complete(ctx, system, prompt)
	})
	if err != nil {
		metrics.ObserveExtraction(provider, "error", time.Since(start))
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	fields, err := ParseFields(out)
	if err != nil {
		metrics.ObserveExtraction(provider, "malformed", time.Since(start))
		l.logger.Debug("extraction output malformed", zap.String("name", req.Name), zap.Error(err))
		return nil, err
	}
	if req.Mode == ModeMissing {
		fields = restrict(fields, req.Fields)
	}
	metrics.ObserveExtraction(provider, "ok", time.Since(start))
	return fields, nil
}

func restrict(fields profile.Fields, keys []string) profile.Fields {
	out := make(profile.Fields, len(keys))
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}
