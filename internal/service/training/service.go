// Package training ingests the material a chatbot answers from: a website, manual Q&A pairs and CSV uploads.
package training

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

// Service updates training datasets through a chatbot.Store.
type Service struct {
	mu      sync.Mutex
	store   chatbot.Store
	fetcher Fetcher
	now     func() time.Time
	logger  *zap.Logger
}

// NewService wires the training service.
func NewService(store chatbot.Store, fetcher Fetcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Dataset returns the current training material of botID.
func (s *Service) Dataset(ctx context.Context, botID string) (chatbot.Dataset, error) {
	return s.store.LoadTraining(ctx, botID)
}

// SaveWebsite fetches rawURL and stores its text as the bot's website.
func (s *Service) SaveWebsite(ctx context.Context, botID, rawURL string) (chatbot.Dataset, error) {
	if strings.TrimSpace(rawURL) == "" {
		return chatbot.Dataset{}, chatbot.ErrURLRequired
	}
	target, err := ValidateURL(rawURL)
	if err != nil {
		return chatbot.Dataset{}, err
	}

	// 先确认 bot 存在，避免为未知 bot 发起抓取。
	if _, err := s.store.FindByID(ctx, botID); err != nil {
		return chatbot.Dataset{}, err
	}

	content, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		s.logger.Warn("[training] website fetch failed", zap.String("bot", botID), zap.String("url", target), zap.Error(err))
		return chatbot.Dataset{}, err
	}

	return s.update(ctx, botID, func(d *chatbot.Dataset, now time.Time) {
		d.Website = &chatbot.Website{URL: target, Content: content, FetchedAt: now}
	})
}

// SaveQAPairs replaces the manually entered pairs.
func (s *Service) SaveQAPairs(ctx context.Context, botID string, pairs []chatbot.QAPair) (chatbot.Dataset, error) {
	pairs = append([]chatbot.QAPair(nil), pairs...)
	if err := chatbot.ValidatePairs(pairs); err != nil {
		return chatbot.Dataset{}, err
	}
	return s.update(ctx, botID, func(d *chatbot.Dataset, _ time.Time) {
		d.ReplacePairs(chatbot.SourceManual, pairs)
	})
}

// ImportCSV replaces the pairs of earlier CSV uploads with the rows read from r.
func (s *Service) ImportCSV(ctx context.Context, botID string, r io.Reader) (chatbot.Dataset, error) {
	pairs, err := ParseCSV(r)
	if err != nil {
		return chatbot.Dataset{}, err
	}
	return s.update(ctx, botID, func(d *chatbot.Dataset, _ time.Time) {
		d.ReplacePairs(chatbot.SourceCSV, pairs)
	})
}

func (s *Service) update(ctx context.Context, botID string, apply func(d *chatbot.Dataset, now time.Time)) (chatbot.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataset, err := s.store.LoadTraining(ctx, botID)
	if err != nil {
		return chatbot.Dataset{}, err
	}

	now := s.now()
	apply(&dataset, now)
	dataset.UpdatedAt = now

	if err := s.store.SaveTraining(ctx, dataset); err != nil {
		return chatbot.Dataset{}, fmt.Errorf("save training of %s: %w", botID, err)
	}

	s.logger.Info("[training] dataset updated",
		zap.String("bot", botID),
		zap.Int("pairs", len(dataset.QAPairs)),
		zap.Bool("website", dataset.Website != nil),
	)
	return dataset, nil
}
