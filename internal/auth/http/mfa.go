package http

import (
	"net/http"

	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// MFAHandler serves TOTP enrollment and second-factor verification.
type MFAHandler struct {
	MFA         *service.MFAService
	Credentials *service.CredentialService
}

type mfaSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// HandleSetup serves POST /v1/auth/mfa/setup. Starts enrollment for the
// authenticated caller; the secret and backup codes are shown exactly once.
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	if id == nil {
		httpx.ErrUnauthenticated.WriteError(w)
		return
	}

	enrollment, err := h.MFA.Enroll(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfaSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
	})
}

type mfaVerifyRequest struct {
	Code string `json:"code"`
}

// HandleVerify serves POST /v1/auth/mfa/verify. Confirms a pending
// enrollment with a live code; from then on MFA gates every login.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	if id == nil {
		httpx.ErrUnauthenticated.WriteError(w)
		return
	}

	var req mfaVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Code == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.MFA.ConfirmEnrollment(r.Context(), id.UserID, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

type mfaVerifyLoginRequest struct {
	UserID     string `json:"user_id"`
	TOTPCode   string `json:"totp_code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

// HandleVerifyLogin serves POST /v1/auth/mfa/verify-login. Completes a login
// that was suspended for a second factor. Exactly one of totp_code and
// backup_code must be present.
func (h *MFAHandler) HandleVerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.UserID == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.Credentials.VerifyLogin(r.Context(), req.UserID, req.TOTPCode, req.BackupCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeAuthResult(w, result)
}
