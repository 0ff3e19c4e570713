package chatbot

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists chatbots and their training data.
type Store interface {
	List(ctx context.Context) ([]Chatbot, error)
	FindByID(ctx context.Context, id string) (Chatbot, error)
	Create(ctx context.Context, bot Chatbot) error
	Delete(ctx context.Context, id string) error
	IncrementMessages(ctx context.Context, id string) error
	SaveTraining(ctx context.Context, dataset Dataset) error
	LoadTraining(ctx context.Context, botID string) (Dataset, error)
}

// MemoryStore implements Store in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	bots     map[string]Chatbot
	training map[string]Dataset
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied chatbots.
func NewMemoryStore(items []Chatbot) *MemoryStore {
	s := &MemoryStore{
		bots:     make(map[string]Chatbot, len(items)),
		training: make(map[string]Dataset),
	}
	for _, item := range items {
		s.bots[item.ID] = item
	}
	return s
}

// List returns chatbots, most recently updated first.
func (s *MemoryStore) List(_ context.Context) ([]Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chatbot, 0, len(s.bots))
	for _, bot := range s.bots {
		out = append(out, bot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// FindByID looks up a chatbot by identifier.
func (s *MemoryStore) FindByID(_ context.Context, id string) (Chatbot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bot, ok := s.bots[id]
	if !ok {
		return Chatbot{}, ErrNotFound
	}
	return bot, nil
}

func (s *MemoryStore) Create(_ context.Context, bot Chatbot) error {
	s.mu.Lock()
	s.bots[bot.ID] = bot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[id]; !ok {
		return ErrNotFound
	}
	delete(s.bots, id)
	delete(s.training, id)
	return nil
}

func (s *MemoryStore) IncrementMessages(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[id]
	if !ok {
		return ErrNotFound
	}
	bot.Messages++
	bot.UpdatedAt = time.Now().UTC()
	s.bots[id] = bot
	return nil
}

func (s *MemoryStore) SaveTraining(_ context.Context, dataset Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[dataset.BotID]; !ok {
		return ErrNotFound
	}
	s.training[dataset.BotID] = copyDataset(dataset)
	return nil
}

// LoadTraining returns the stored dataset, or an empty one if nothing was saved yet.
func (s *MemoryStore) LoadTraining(_ context.Context, botID string) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.bots[botID]; !ok {
		return Dataset{}, ErrNotFound
	}
	dataset, ok := s.training[botID]
	if !ok {
		return Dataset{BotID: botID, QAPairs: []QAPair{}}, nil
	}
	return copyDataset(dataset), nil
}

func copyDataset(d Dataset) Dataset {
	out := d
	out.QAPairs = append([]QAPair{}, d.QAPairs...)
	if d.Website != nil {
		site := *d.Website
		out.Website = &site
	}
	return out
}
