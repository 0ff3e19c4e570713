// Package chatbottest holds the behaviour every chatbot.Store must share.
package chatbottest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
)

// Factory opens an empty store preloaded with seed.
type Factory func(t *testing.T, seed []chatbot.Chatbot) chatbot.Store

// RunStoreContract exercises a Store implementation.
func RunStoreContract(t *testing.T, newStore Factory) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("list orders by update time", func(t *testing.T) {
		store := newStore(t, chatbot.Seed(now))

		bots, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, bots, 3)
		require.Equal(t, []string{"bot-2", "bot-1", "bot-3"}, ids(bots))
		require.Equal(t, 867, bots[0].Messages)
		require.True(t, bots[0].UpdatedAt.Equal(now.Add(-5*time.Hour)))
	})

	t.Run("create find delete", func(t *testing.T) {
		store := newStore(t, nil)

		bot := chatbot.Chatbot{
			ID:             "bot-new",
			Name:           "Docs Bot",
			Description:    "Answers documentation questions",
			WelcomeMessage: chatbot.DefaultWelcomeMessage,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, store.Create(ctx, bot))

		got, err := store.FindByID(ctx, "bot-new")
		require.NoError(t, err)
		require.Equal(t, bot.Name, got.Name)
		require.Equal(t, bot.WelcomeMessage, got.WelcomeMessage)
		require.True(t, got.CreatedAt.Equal(now))

		require.NoError(t, store.Delete(ctx, "bot-new"))
		_, err = store.FindByID(ctx, "bot-new")
		require.ErrorIs(t, err, chatbot.ErrNotFound)
		require.ErrorIs(t, store.Delete(ctx, "bot-new"), chatbot.ErrNotFound)
	})

	t.Run("increment messages", func(t *testing.T) {
		store := newStore(t, chatbot.Seed(now))

		require.NoError(t, store.IncrementMessages(ctx, "bot-3"))
		require.NoError(t, store.IncrementMessages(ctx, "bot-3"))
		got, err := store.FindByID(ctx, "bot-3")
		require.NoError(t, err)
		require.Equal(t, 434, got.Messages)
		require.True(t, got.UpdatedAt.After(now))

		require.ErrorIs(t, store.IncrementMessages(ctx, "nope"), chatbot.ErrNotFound)
	})

	t.Run("training round trip", func(t *testing.T) {
		store := newStore(t, chatbot.Seed(now))

		empty, err := store.LoadTraining(ctx, "bot-1")
		require.NoError(t, err)
		require.True(t, empty.Empty())
		require.NotNil(t, empty.QAPairs)

		dataset := chatbot.Dataset{
			BotID:     "bot-1",
			Website:   &chatbot.Website{URL: "https://example.com", Content: "We sell shoes.", FetchedAt: now},
			UpdatedAt: now,
		}
		dataset.ReplacePairs(chatbot.SourceManual, []chatbot.QAPair{
			{Question: "Do you ship?", Answer: "Yes"},
			{Question: "Returns?", Answer: "30 days"},
		})
		dataset.ReplacePairs(chatbot.SourceCSV, []chatbot.QAPair{{Question: "Sizes?", Answer: "36-46"}})
		require.NoError(t, store.SaveTraining(ctx, dataset))

		got, err := store.LoadTraining(ctx, "bot-1")
		require.NoError(t, err)
		require.Equal(t, dataset.QAPairs, got.QAPairs)
		require.NotNil(t, got.Website)
		require.Equal(t, "https://example.com", got.Website.URL)
		require.Equal(t, "We sell shoes.", got.Website.Content)
		require.True(t, got.Website.FetchedAt.Equal(now))
		require.True(t, got.UpdatedAt.Equal(now))

		got.ReplacePairs(chatbot.SourceManual, nil)
		got.Website = nil
		require.NoError(t, store.SaveTraining(ctx, got))

		again, err := store.LoadTraining(ctx, "bot-1")
		require.NoError(t, err)
		require.Nil(t, again.Website)
		require.Equal(t, []chatbot.QAPair{{Question: "Sizes?", Answer: "36-46", Source: chatbot.SourceCSV}}, again.QAPairs)
	})

	t.Run("training requires bot", func(t *testing.T) {
		store := newStore(t, chatbot.Seed(now))

		_, err := store.LoadTraining(ctx, "ghost")
		require.ErrorIs(t, err, chatbot.ErrNotFound)
		require.ErrorIs(t, store.SaveTraining(ctx, chatbot.Dataset{BotID: "ghost"}), chatbot.ErrNotFound)
	})

	t.Run("delete drops training", func(t *testing.T) {
		store := newStore(t, chatbot.Seed(now))

		dataset := chatbot.Dataset{BotID: "bot-2"}
		dataset.ReplacePairs(chatbot.SourceManual, []chatbot.QAPair{{Question: "q", Answer: "a"}})
		require.NoError(t, store.SaveTraining(ctx, dataset))
		require.NoError(t, store.Delete(ctx, "bot-2"))

		bot := chatbot.Seed(now)[1]
		require.NoError(t, store.Create(ctx, bot))
		got, err := store.LoadTraining(ctx, "bot-2")
		require.NoError(t, err)
		require.True(t, got.Empty())
	})
}

func ids(bots []chatbot.Chatbot) []string {
	out := make([]string, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.ID)
	}
	return out
}
