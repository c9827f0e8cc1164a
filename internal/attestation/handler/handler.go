package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-chi/chi/v5"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/attestation/typeddata"
	"vcregistry/pkg/domain"
	dErrors "vcregistry/pkg/domain-errors"
	"vcregistry/pkg/platform/httputil"
	"vcregistry/pkg/platform/middleware/requesttime"
	"vcregistry/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Domain() typeddata.Domain
	RegisterVerification(ctx context.Context, caller domain.Address, claim models.Claim, signature []byte) (*models.Verification, error)
	RevokeVerification(ctx context.Context, caller domain.Address, id domain.VerificationID) (*models.Verification, error)
	RemoveVerification(ctx context.Context, caller domain.Address, id domain.VerificationID) error
	VerificationCount(ctx context.Context) (uint64, error)
	IsVerified(ctx context.Context, subject domain.Address) (bool, error)
	LookupVerification(ctx context.Context, id domain.VerificationID) (models.Verification, bool, error)
	VerificationsForSubject(ctx context.Context, subject domain.Address) ([]models.Verification, error)
	VerificationsForVerifier(ctx context.Context, verifier domain.Address) ([]models.Verification, error)
}

// Handler serves the verification registry.
type Handler struct {
	registry Service
	logger   *slog.Logger
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the public read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry/domain", h.handleDomain)
	r.Get("/verifications/count", h.handleCount)
	r.Get("/verifications/{uuid}", h.handleGet)
	r.Get("/subjects/{subject}/verified", h.handleIsVerified)
	r.Get("/subjects/{subject}/verifications", h.handleForSubject)
	r.Get("/verifiers/{account}/verifications", h.handleForVerifier)
}

// RegisterVerifier mounts the verifier-gated routes. r must authenticate the caller.
func (h *Handler) RegisterVerifier(r chi.Router) {
	r.Post("/verifications", h.handleRegister)
	r.Post("/verifications/{uuid}/revoke", h.handleRevoke)
	r.Delete("/verifications/{uuid}", h.handleRemove)
}

type domainResponse struct {
	Domain      typeddata.Domain `json:"domain"`
	PrimaryType string           `json:"primaryType"`
	Types       apitypes.Types   `json:"types"`
}

type countResponse struct {
	Count uint64 `json:"count"`
}

type verifiedResponse struct {
	Subject  domain.Address `json:"subject"`
	Verified bool           `json:"verified"`
}

func (h *Handler) handleDomain(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, domainResponse{
		Domain:      h.registry.Domain(),
		PrimaryType: typeddata.PrimaryType,
		Types:       typeddata.Types,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RegisterVerificationRequest](w, r, h.logger)
	if !ok {
		return
	}

	v, err := h.registry.RegisterVerification(ctx, caller, req.ParsedClaim(), req.ParsedSignature())
	if err != nil {
		h.logFailure(ctx, "register verification", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.NewVerificationResponse(*v, requesttime.Unix(ctx)))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	v, err := h.registry.RevokeVerification(ctx, caller, id)
	if err != nil {
		h.logFailure(ctx, "revoke verification", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerificationResponse(*v, requesttime.Unix(ctx)))
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := httputil.RequireCaller(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	if err := h.registry.RemoveVerification(ctx, caller, id); err != nil {
		h.logFailure(ctx, "remove verification", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.registry.VerificationCount(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countResponse{Count: count})
}

// handleGet returns the zero record with exists=false for unknown ids.
// ?strict=true turns that into a 404 instead.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	v, found, err := h.registry.LookupVerification(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !found && r.URL.Query().Get("strict") == "true" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "verification not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerificationResponse(v, requesttime.Unix(ctx)))
}

func (h *Handler) handleIsVerified(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.addressParam(w, r, "subject")
	if !ok {
		return
	}
	verified, err := h.registry.IsVerified(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifiedResponse{Subject: subject, Verified: verified})
}

func (h *Handler) handleForSubject(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.addressParam(w, r, "subject")
	if !ok {
		return
	}
	list, err := h.registry.VerificationsForSubject(r.Context(), subject)
	h.writeList(w, r, list, err)
}

func (h *Handler) handleForVerifier(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.addressParam(w, r, "account")
	if !ok {
		return
	}
	list, err := h.registry.VerificationsForVerifier(r.Context(), verifier)
	h.writeList(w, r, list, err)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, list []models.Verification, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	now := requesttime.Unix(r.Context())
	resp := models.VerificationListResponse{
		Verifications: make([]models.VerificationResponse, 0, len(list)),
		Count:         len(list),
	}
	for _, v := range list {
		resp.Verifications = append(resp.Verifications, models.NewVerificationResponse(v, now))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (domain.VerificationID, bool) {
	id, err := domain.ParseVerificationID(chi.URLParam(r, "uuid"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.VerificationID{}, false
	}
	return id, true
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request, name string) (domain.Address, bool) {
	a, err := domain.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.Address{}, false
	}
	return a, true
}

func (h *Handler) logFailure(ctx context.Context, action string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestcontext.RequestID(ctx),
			"caller", requestcontext.Caller(ctx).Hex(),
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, action+" rejected",
		"request_id", requestcontext.RequestID(ctx),
		"caller", requestcontext.Caller(ctx).Hex(),
		"code", code,
	)
}
