package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/internal/utils"
)

const uploadFieldName = "files"

// DashboardFormHandler exposes the activity form.
type DashboardFormHandler struct {
	store     *service.DashboardSessionStore
	validator *validator.Validate
	maxBytes  int64
	logger    zerolog.Logger
}

// NewDashboardFormHandler constructs the handler. Files larger than maxBytes
// are not read into memory.
func NewDashboardFormHandler(store *service.DashboardSessionStore, validate *validator.Validate, maxBytes int64, logger zerolog.Logger) *DashboardFormHandler {
	return &DashboardFormHandler{
		store:     store,
		validator: validate,
		maxBytes:  maxBytes,
		logger:    logger.With().Str("component", "dashboard_form_handler").Logger(),
	}
}

// Register binds the form routes.
func (h *DashboardFormHandler) Register(router fiber.Router) {
	router.Get("/form", h.view)
	router.Post("/form/open", h.open)
	router.Patch("/form", h.update)
	router.Post("/form/media/:kind", h.upload)
	router.Delete("/form/media/:kind/:index", h.removeMedia)
	router.Post("/form/submit", h.submit)
	router.Post("/form/cancel", h.cancel)
}

func (h *DashboardFormHandler) view(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "form", session.Form().View())
}

func (h *DashboardFormHandler) open(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.FormOpenRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	if id := strings.TrimSpace(payload.ActivityID); id != "" {
		if err := session.Edit(requestContext(c), id); err != nil {
			return sendServiceError(c, *requestLogger(h.logger, c), err)
		}
	} else if err := session.Add(); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "form opened", session.Form().View())
}

func (h *DashboardFormHandler) update(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	var payload dto.FormUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := session.Form().Update(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "form updated", session.Form().View())
}

func (h *DashboardFormHandler) upload(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form required")
	}
	headers := form.File[uploadFieldName]
	if len(headers) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "files are required")
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := h.readFile(header)
		if err != nil {
			requestLogger(h.logger, c).Error().Err(err).Str("file", header.Filename).Msg("failed to read uploaded file")
			return utils.SendError(c, fiber.StatusBadRequest, "failed to read uploaded file")
		}
		files = append(files, file)
	}

	if err := session.Form().Upload(requestContext(c), c.Params("kind"), files); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "upload successful", session.Form().View())
}

func (h *DashboardFormHandler) readFile(header *multipart.FileHeader) (service.UploadFile, error) {
	file := service.UploadFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		return file, nil
	}

	src, err := header.Open()
	if err != nil {
		return file, err
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return file, err
	}
	file.Content = content
	return file, nil
}

func (h *DashboardFormHandler) removeMedia(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid media index")
	}

	if err := session.Form().RemoveMedia(requestContext(c), c.Params("kind"), index); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "media removed", session.Form().View())
}

func (h *DashboardFormHandler) submit(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.Save(requestContext(c)); err != nil {
		if errors.Is(err, service.ErrFormInvalid) {
			return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), session.Form().View().Errors)
		}
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "activity saved", session.View())
}

func (h *DashboardFormHandler) cancel(c *fiber.Ctx) error {
	session, err := dashboardSession(c, h.store)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	if err := session.CancelForm(requestContext(c)); err != nil {
		return sendServiceError(c, *requestLogger(h.logger, c), err)
	}
	return utils.SendSuccess(c, "form cancelled", session.Form().View())
}
