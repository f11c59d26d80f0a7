package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/query"
)

type SearchRequest struct {
	Text string
}

// SchemaFunc supplies table context for translators that prompt with it.
type SchemaFunc func(ctx context.Context) ([]TableContext, error)

type Options struct {
	ConfigName string
	// Provider labels generation metrics.
	Provider string
	Schema   SchemaFunc
}

type Service struct {
	translator Translator
	options    Options
	logger     *slog.Logger
}

func NewService(translator Translator, options Options, logger *slog.Logger) (*Service, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if strings.TrimSpace(options.ConfigName) == "" {
		options.ConfigName = DefaultConfigName
	}
	if strings.TrimSpace(options.Provider) == "" {
		options.Provider = "custom"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{translator: translator, options: options, logger: logger}, nil
}

// Generate returns the translated statement. It never inspects the SQL.
func (s *Service) Generate(ctx context.Context, search SearchRequest) (query.Statement, error) {
	result, err := s.Translate(ctx, search)
	if err != nil {
		return query.Statement{}, err
	}
	return query.Statement{Text: result.SQL}, nil
}

func (s *Service) Translate(ctx context.Context, search SearchRequest) (Result, error) {
	start := time.Now()
	result, err := s.translate(ctx, search)
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptySearch):
		outcome = "rejected"
	case errors.Is(err, ErrTranslationEmpty):
		outcome = "empty"
	default:
		outcome = "unavailable"
	}
	observability.ObserveGeneration(s.options.Provider, outcome, time.Since(start))

	logger := observability.WithContext(ctx, s.logger)
	if err != nil {
		logger.WarnContext(ctx, "generation failed",
			slog.String("provider", s.options.Provider),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	logger.DebugContext(ctx, "generated statement",
		slog.String("provider", result.Provider),
		slog.Int("sql_length", len(result.SQL)),
	)
	return result, nil
}

func (s *Service) translate(ctx context.Context, search SearchRequest) (Result, error) {
	text := strings.TrimSpace(search.Text)
	if text == "" {
		return Result{}, ErrEmptySearch
	}

	request := Request{ConfigName: s.options.ConfigName, NaturalLanguage: text}
	if s.options.Schema != nil {
		tables, err := s.options.Schema(ctx)
		if err != nil {
			observability.WithContext(ctx, s.logger).WarnContext(ctx, "schema context unavailable", slog.Any("error", err))
		}
		request.Tables = tables
	}

	result, err := s.translator.Translate(ctx, request)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTranslationUnavailable, err)
	}
	result.SQL = strings.TrimSpace(result.SQL)
	if result.SQL == "" {
		return Result{}, ErrTranslationEmpty
	}
	return result, nil
}
