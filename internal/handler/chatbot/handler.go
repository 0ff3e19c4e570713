package chatbot

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/embed"
	"github.com/anasify/dashboard/backend/internal/service/training"
	"github.com/anasify/dashboard/backend/pkg/utils"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 8 << 20
)

// Handler chatbot 管理、训练数据与嵌入代码的HTTP处理器
type Handler struct {
	bots     chatbot.Store
	training *training.Service
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建chatbot处理器
func New(bots chatbot.Store, trainingSvc *training.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bots:     bots,
		training: trainingSvc,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes 注册chatbot相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chatbots", h.handleList)
	r.Post("/chatbots", h.handleCreate)
	r.Get("/chatbots/{botID}", h.handleGet)
	r.Delete("/chatbots/{botID}", h.handleDelete)
	r.Get("/chatbots/{botID}/embed", h.handleEmbed)

	r.Get("/chatbots/{botID}/training", h.handleGetTraining)
	r.Post("/chatbots/{botID}/training/website", h.handleTrainWebsite)
	r.Post("/chatbots/{botID}/training/qa", h.handleTrainQA)
	r.Post("/chatbots/{botID}/training/csv", h.handleTrainCSV)
}

// handleList 列出所有chatbot
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	bots, err := h.bots.List(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, bots)
}

type createRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	WelcomeMessage string `json:"welcomeMessage"`
}

// handleCreate 创建chatbot
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := utils.DecodeJSON(w, r, maxJSONBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := h.now()
	bot := chatbot.Chatbot{
		ID:             uuid.NewString(),
		Name:           payload.Name,
		Description:    payload.Description,
		WelcomeMessage: payload.WelcomeMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	bot.Normalize()
	if err := bot.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bots.Create(r.Context(), bot); err != nil {
		h.respondErr(w, err)
		return
	}

	h.logger.Info("[chatbot] created", zap.String("bot", bot.ID), zap.String("name", bot.Name))
	utils.RespondJSON(w, http.StatusCreated, bot)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	bot, err := h.bots.FindByID(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, bot)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	if err := h.bots.Delete(r.Context(), botID); err != nil {
		h.respondErr(w, err)
		return
	}
	h.logger.Info("[chatbot] deleted", zap.String("bot", botID))
	w.WriteHeader(http.StatusNoContent)
}

// handleEmbed 生成嵌入代码片段
func (h *Handler) handleEmbed(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	if _, err := h.bots.FindByID(r.Context(), botID); err != nil {
		h.respondErr(w, err)
		return
	}

	q := r.URL.Query()
	opts, err := embed.ParseOptions(botID, q.Get("theme"), q.Get("position"), q.Get("hideBranding"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snippet, err := embed.Snippet(opts)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"snippet": snippet,
		"options": opts,
	})
}

func (h *Handler) handleGetTraining(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.training.Dataset(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dataset)
}

func (h *Handler) handleTrainWebsite(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := utils.DecodeJSON(w, r, maxJSONBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dataset, err := h.training.SaveWebsite(r.Context(), chi.URLParam(r, "botID"), payload.URL)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dataset)
}

func (h *Handler) handleTrainQA(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Pairs []chatbot.QAPair `json:"pairs"`
	}
	if err := utils.DecodeJSON(w, r, maxJSONBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dataset, err := h.training.SaveQAPairs(r.Context(), chi.URLParam(r, "botID"), payload.Pairs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dataset)
}

// handleTrainCSV 导入 multipart 字段 file 中的 CSV
func (h *Handler) handleTrainCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	dataset, err := h.training.ImportCSV(r.Context(), chi.URLParam(r, "botID"), file)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dataset)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("[chatbot] request failed", zap.Error(err))
	}
	utils.RespondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatbot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatbot.ErrNameRequired),
		errors.Is(err, chatbot.ErrDescRequired),
		errors.Is(err, chatbot.ErrURLRequired),
		errors.Is(err, chatbot.ErrPairsRequired),
		errors.Is(err, chatbot.ErrIncompletePair),
		errors.Is(err, training.ErrInvalidURL),
		errors.Is(err, training.ErrBlockedAddress),
		errors.Is(err, training.ErrCSVHeader),
		errors.Is(err, training.ErrCSVEmpty),
		errors.Is(err, training.ErrCSVMalformed):
		return http.StatusBadRequest
	case errors.Is(err, training.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
