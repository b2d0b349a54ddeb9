// Package sanitizer turns untrusted page content into a bounded text summary
// and a set of named risk signals. It is the only package that ever sees the
// raw page; everything downstream works from ProcessedInput.
package sanitizer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var errMarkupTooLarge = errors.New("markup exceeds parse limit")

// Processor extracts risk signals and a sanitized summary from raw content.
// A Processor holds only configuration and is safe for concurrent use.
type Processor struct {
	maxSummaryRunes int
	maxMarkupBytes  int
	logger          *zap.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithMaxSummaryRunes overrides the summary length bound
func WithMaxSummaryRunes(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxSummaryRunes = n
		}
	}
}

// WithMaxMarkupBytes overrides the largest body parsed as markup
func WithMaxMarkupBytes(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxMarkupBytes = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a Processor with default bounds
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		maxSummaryRunes: DefaultMaxSummaryRunes,
		maxMarkupBytes:  DefaultMaxMarkupBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process never fails: markup that cannot be parsed is handled as plain
// text and the result is marked Degraded.
func (p *Processor) Process(raw RawContent) *ProcessedInput {
	text := decodeBody(raw.Body)
	signals := newSignalSet()

	var summary string
	degraded := false

	pg, err := p.load(text)
	if err != nil {
		degraded = true
		p.logWarn("markup parse degraded to plain text",
			zap.String("source", raw.Source), zap.Error(err))

		summary = plainText(text)
		if name, ok := detectSocialEngineering(summary); ok {
			signals.add(name)
		}
	} else {
		for _, detect := range detectors {
			if name, ok := detect(pg); ok {
				signals.add(name)
			}
		}
		summary = pg.text
	}

	out := &ProcessedInput{
		Summary: truncateRunes(summary, p.maxSummaryRunes),
		Provenance: Provenance{
			Source: raw.Source,
			Trust:  TrustUntrusted,
		},
		RiskSignals: signals.list(),
		Degraded:    degraded,
	}

	p.logDebug("content processed",
		zap.String("source", raw.Source),
		zap.Strings("signals", out.RiskSignals),
		zap.Int("summary_runes", len([]rune(out.Summary))),
		zap.Bool("degraded", degraded))

	return out
}

func (p *Processor) load(text string) (*page, error) {
	if len(text) > p.maxMarkupBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", errMarkupTooLarge, len(text), p.maxMarkupBytes)
	}
	doc, err := parseDocument(text)
	if err != nil {
		return nil, err
	}
	return &page{doc: doc, text: visibleText(doc)}, nil
}

// logging helpers
func (p *Processor) logDebug(msg string, fields ...zap.Field) {
	if p.logger != nil {
		p.logger.Debug(msg, fields...)
	}
}

func (p *Processor) logWarn(msg string, fields ...zap.Field) {
	if p.logger != nil {
		p.logger.Warn(msg, fields...)
	}
}
