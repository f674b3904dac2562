package rest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/service"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type errorResponse struct {
	Success  *bool  `json:"success,omitempty"`
	Error    string `json:"error"`
	IsLocked bool   `json:"isLocked,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Id    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type loginResponse struct {
	Success      bool         `json:"success"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, tokens, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	name := user.Name
	if name == "" {
		name = user.Email
	}
	h.sendResponse(w, loginResponse{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         userResponse{Id: user.Id, Email: user.Email, Name: name},
	})
}

type verifyResponse struct {
	Valid bool         `json:"valid"`
	User  userResponse `json:"user"`
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, err := h.Service.VerifyToken(getToken(r), service.AccessToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenMissing):
			h.sendError(w, http.StatusUnauthorized, "No token provided")
		case errors.Is(err, service.ErrTokenWrongType):
			h.sendError(w, http.StatusUnauthorized, "Invalid token type")
		default:
			h.sendError(w, http.StatusUnauthorized, "Invalid token")
		}
		return
	}

	h.sendResponse(w, verifyResponse{
		Valid: true,
		User:  userResponse{Id: claims.SubjectId, Email: claims.Email},
	})
}

type fileResponse struct {
	FileId    string     `json:"fileId"`
	FileName  string     `json:"fileName,omitempty"`
	Content   *string    `json:"content"`
	IsLocked  bool       `json:"isLocked"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func newFileResponse(view service.FileView) fileResponse {
	resp := fileResponse{
		FileId:   view.FileId,
		FileName: view.FileName,
		Content:  view.Content,
		IsLocked: view.IsLocked,
	}
	if view.Exists {
		resp.CreatedAt = &view.CreatedAt
		resp.UpdatedAt = &view.UpdatedAt
	}
	return resp
}

type writeFileRequest struct {
	FileName       string  `json:"fileName"`
	Content        string  `json:"content"`
	Password       *string `json:"password"`
	UnlockPassword *string `json:"unlockPassword"`
}

type writeFileResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileId   string `json:"fileId"`
	FileName string `json:"fileName"`
	Version  int    `json:"version"`
}

// HandleFile serves read, write and delete of a single file. All three
// accept an optional token; callers without one act as guest.
func (h *Handler) HandleFile(w http.ResponseWriter, r *http.Request) {
	fileId := r.PathValue("fileId")
	subject := h.Service.OptionalSubject(getToken(r))

	switch r.Method {
	case http.MethodGet:
		view, err := h.Service.ReadFile(r.Context(), fileId, subject, requestMeta(r))
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		h.sendResponse(w, newFileResponse(view))

	case http.MethodPost:
		var req writeFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		result, err := h.Service.WriteFile(r.Context(), service.WriteParams{
			FileId:         fileId,
			FileName:       req.FileName,
			Content:        req.Content,
			Password:       req.Password,
			UnlockPassword: req.UnlockPassword,
			Subject:        subject,
			Meta:           requestMeta(r),
		})
		if err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		h.sendResponse(w, writeFileResponse{
			Success:  true,
			Message:  "File saved",
			FileId:   result.FileId,
			FileName: result.FileName,
			Version:  result.Version,
		})

	case http.MethodDelete:
		if err := h.Service.DeleteFile(r.Context(), fileId, subject, requestMeta(r)); err != nil {
			h.sendServiceError(w, r, err)
			return
		}
		h.sendResponse(w, messageResponse{Success: true, Message: "File deleted"})

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type unlockRequest struct {
	Password *string `json:"password"`
}

func (h *Handler) HandleFileUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subject := h.Service.OptionalSubject(getToken(r))
	view, err := h.Service.UnlockFile(r.Context(), r.PathValue("fileId"), req.Password, subject, requestMeta(r))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendResponse(w, newFileResponse(view))
}

// HandleMissingFileId answers /api/files/ with no id.
func (h *Handler) HandleMissingFileId(w http.ResponseWriter, r *http.Request) {
	h.sendError(w, http.StatusBadRequest, "fileId is required")
}

type historyResponse struct {
	Success bool                     `json:"success"`
	History []models.HistorySnapshot `json:"history"`
}

func (h *Handler) HandleFileHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	subject, err := h.Service.Authenticate(getToken(r))
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	history, err := h.Service.FileHistory(r.Context(), r.PathValue("fileId"), subject)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendResponse(w, historyResponse{Success: true, History: history})
}

type accessLogResponse struct {
	Action    models.AccessAction `json:"action"`
	UserId    string              `json:"userId"`
	IPAddress string              `json:"ipAddress"`
	Timestamp time.Time           `json:"timestamp"`
	UserAgent string              `json:"userAgent"`
	FileName  string              `json:"fileName,omitempty"`
	Browser   string              `json:"browser"`
	OS        string              `json:"os"`
	Device    string              `json:"device"`
}

type accessLogsResponse struct {
	Success bool                `json:"success"`
	Logs    []accessLogResponse `json:"logs"`
}

func (h *Handler) HandleFileAccessLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	subject, err := h.Service.Authenticate(getToken(r))
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "Unauthorized - Authentication required")
		return
	}

	entries, err := h.Service.FileAccessLogs(r.Context(), r.PathValue("fileId"), subject)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	logs := make([]accessLogResponse, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, accessLogResponse{
			Action:    entry.Action,
			UserId:    entry.UserId,
			IPAddress: entry.IPAddress,
			Timestamp: entry.Timestamp,
			UserAgent: entry.UserAgent,
			FileName:  entry.FileName,
			Browser:   entry.Browser,
			OS:        entry.OS,
			Device:    entry.Device,
		})
	}
	h.sendResponse(w, accessLogsResponse{Success: true, Logs: logs})
}

func (h *Handler) HandleDesktop(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.sendResponse(w, h.Service.GetDesktop(r.Context()))

	case http.MethodPost:
		var state models.DesktopState
		if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
			h.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := h.Service.SaveDesktop(r.Context(), state); err != nil {
			log.Logger.Error("failed to save desktop state", zap.Error(err))
			failed := false
			h.sendJSON(w, http.StatusInternalServerError, errorResponse{Success: &failed, Error: err.Error()})
			return
		}
		h.sendResponse(w, messageResponse{Success: true, Message: "Desktop data saved"})

	default:
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *Handler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, errorResponse{Error: message})
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, resp any) {
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// sendServiceError maps a service error kind to its status code. Lock
// failures carry isLocked so the client can prompt for the password.
func (h *Handler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	message := "Internal server error"
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	status := http.StatusInternalServerError
	isLocked := false
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrFileLocked):
		status = http.StatusForbidden
		isLocked = true
	case errors.Is(err, service.ErrWrongUnlockPassword):
		status = http.StatusUnauthorized
		isLocked = true
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotConfigured):
	default:
		log.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	h.sendJSON(w, status, errorResponse{Error: message, IsLocked: isLocked})
}

// getToken prefers the custom token header over a bearer Authorization
// header.
func getToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("token")); token != "" {
		return token
	}
	const prefix = "Bearer "
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/login", h.HandleLogin)
	mux.HandleFunc("/api/auth/verify", h.HandleVerify)

	mux.HandleFunc("/api/files/{$}", h.HandleMissingFileId)
	mux.HandleFunc("/api/files/{fileId}", h.HandleFile)
	mux.HandleFunc("/api/files/{fileId}/unlock", h.HandleFileUnlock)
	mux.HandleFunc("/api/files/{fileId}/history", h.HandleFileHistory)
	mux.HandleFunc("/api/files/{fileId}/access-logs", h.HandleFileAccessLogs)

	mux.HandleFunc("/api/desktop", h.HandleDesktop)
}
