package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vcregistry/internal/directory/models"
	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/httputil"
	"vcregistry/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/directory-mocks.go -package=mocks Service

// Service defines the verifier directory operations exposed over HTTP.
type Service interface {
	AddVerifier(ctx context.Context, caller domain.Address, v models.Verifier) (*models.Verifier, error)
	UpdateVerifier(ctx context.Context, caller domain.Address, v models.Verifier) (*models.Verifier, error)
	RemoveVerifier(ctx context.Context, caller, account domain.Address) error
	IsVerifier(ctx context.Context, account domain.Address) (bool, error)
	VerifierCount(ctx context.Context) (uint64, error)
	GetVerifier(ctx context.Context, account domain.Address) (*models.Verifier, error)
}

// Handler serves the verifier directory.
type Handler struct {
	directory Service
	logger    *slog.Logger
}

func New(directory Service, logger *slog.Logger) *Handler {
	return &Handler{directory: directory, logger: logger}
}

// Register mounts the public read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verifiers/count", h.handleCount)
	r.Get("/verifiers/{account}", h.handleGet)
	r.Get("/verifiers/{account}/status", h.handleStatus)
}

// RegisterAdmin mounts the owner routes. r must authenticate the caller.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/verifiers", h.handleAdd)
	r.Put("/admin/verifiers/{account}", h.handleUpdate)
	r.Delete("/admin/verifiers/{account}", h.handleRemove)
}

type countResponse struct {
	Count uint64 `json:"count"`
}

type statusResponse struct {
	Account    domain.Address `json:"account"`
	IsVerifier bool           `json:"is_verifier"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.VerifierRecordRequest](w, r, h.logger)
	if !ok {
		return
	}
	account, err := domain.ParseAddress(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := req.Record(account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.directory.AddVerifier(ctx, caller, record)
	if err != nil {
		h.logFailure(ctx, "add verifier", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.NewVerifierResponse(v))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.VerifierRecordRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Account != "" {
		bodyAccount, err := domain.ParseAddress(req.Account)
		if err != nil || bodyAccount != account {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "account in body does not match path"))
			return
		}
	}
	record, err := req.Record(account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.directory.UpdateVerifier(ctx, caller, record)
	if err != nil {
		h.logFailure(ctx, "update verifier", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerifierResponse(v))
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	if err := h.directory.RemoveVerifier(ctx, caller, account); err != nil {
		h.logFailure(ctx, "remove verifier", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.directory.VerifierCount(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	v, err := h.directory.GetVerifier(r.Context(), account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerifierResponse(v))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	is, err := h.directory.IsVerifier(r.Context(), account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Account: account, IsVerifier: is})
}

func (h *Handler) accountParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.Address{}, false
	}
	return account, true
}

// logFailure logs at warn for expected rejections and at error otherwise.
func (h *Handler) logFailure(ctx context.Context, action string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"caller", requestcontext.Caller(ctx).Hex(),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+action, attrs...)
		return
	}
	h.logger.WarnContext(ctx, action+" rejected", attrs...)
}
