package controller

import (
	"errors"

	"novelsync-be/internal/dto"
	"novelsync-be/internal/entity"
	"novelsync-be/internal/pkg/serverutils"
	"novelsync-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ICollabController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	GetThreads(ctx *fiber.Ctx) error
	AddComment(ctx *fiber.Ctx) error
	UpdateCommentStatus(ctx *fiber.Ctx) error
	GetActivities(ctx *fiber.Ctx) error
	CreateActivity(ctx *fiber.Ctx) error
	GetLocks(ctx *fiber.Ctx) error
}

type collabController struct {
	comments   service.ICommentService
	activities service.IActivityService
	locks      service.ILockService
}

func NewCollabController(comments service.ICommentService, activities service.IActivityService, locks service.ILockService) ICollabController {
	return &collabController{
		comments:   comments,
		activities: activities,
		locks:      locks,
	}
}

func (c *collabController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/collab/v1/projects/:projectId")
	h.Use(auth)
	h.Get("/comments", c.GetThreads)
	h.Post("/comments", c.AddComment)
	h.Patch("/comments/:commentId/status", c.UpdateCommentStatus)
	h.Get("/activities", c.GetActivities)
	h.Post("/activities", c.CreateActivity)
	h.Get("/locks", c.GetLocks)
}

// toApiError maps collaboration errors onto HTTP statuses.
func toApiError(err error) error {
	var apiErr *serverutils.ApiError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, service.ErrEmptyComment),
		errors.Is(err, service.ErrSelectionRequired),
		errors.Is(err, service.ErrInvalidStatus):
		return serverutils.NewApiError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCommentNotFound),
		errors.Is(err, service.ErrParentNotFound),
		errors.Is(err, service.ErrLockNotFound):
		return serverutils.NewApiError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrLockNotOwned),
		errors.Is(err, service.ErrLockConflict):
		return serverutils.NewApiError(fiber.StatusConflict, err.Error())
	}
	return err
}

func localString(ctx *fiber.Ctx, key string) string {
	v, _ := ctx.Locals(key).(string)
	return v
}

func (c *collabController) GetThreads(ctx *fiber.Ctx) error {
	threads, err := c.comments.Threads(ctx.UserContext(), ctx.Params("projectId"))
	if err != nil {
		return toApiError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get comment threads", dto.ThreadsResponse{
		Threads: threads,
		Total:   len(threads),
	}))
}

// AddComment is the write path used while the socket is unavailable.
func (c *collabController) AddComment(ctx *fiber.Ctx) error {
	var req dto.CommentAddPayload
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "invalid request body")
	}
	req.ProjectID = ctx.Params("projectId")

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userName := localString(ctx, "user_name")
	if userName == "" {
		userName = req.UserName
	}

	res, err := c.comments.Add(ctx.UserContext(), service.AddCommentInput{
		ProjectID: req.ProjectID,
		UserID:    localString(ctx, "user_id"),
		UserName:  userName,
		Text:      req.Text,
		Format:    req.Format,
		Selection: req.Selection,
		Mentions:  req.Mentions,
		ThreadID:  req.ThreadID,
		ParentID:  req.ParentID,
		ID:        req.ID,
	})
	if err != nil {
		return toApiError(err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success add comment", res))
}

func (c *collabController) UpdateCommentStatus(ctx *fiber.Ctx) error {
	var req dto.CommentUpdatePayload
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "invalid request body")
	}
	req.ProjectID = ctx.Params("projectId")
	req.CommentID = ctx.Params("commentId")

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.comments.UpdateStatus(
		ctx.UserContext(),
		req.ProjectID,
		req.CommentID,
		req.Status,
		localString(ctx, "user_id"),
		localString(ctx, "user_name"),
	)
	if err != nil {
		return toApiError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update comment status", res))
}

func (c *collabController) GetActivities(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	res := c.activities.Recent(ctx.UserContext(), ctx.Params("projectId"), limit)
	return ctx.JSON(serverutils.SuccessResponse("Success get activities", res))
}

// CreateActivity accepts entries a client logged while offline. Replays of
// a known ID are accepted and ignored.
func (c *collabController) CreateActivity(ctx *fiber.Ctx) error {
	var req dto.CreateActivityRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewApiError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	userName := req.UserName
	if userName == "" {
		userName = localString(ctx, "user_name")
	}

	res, _ := c.activities.Record(ctx.UserContext(), entity.Activity{
		ID:        req.ID,
		ProjectID: ctx.Params("projectId"),
		Type:      req.Type,
		UserID:    localString(ctx, "user_id"),
		UserName:  userName,
		ThreadID:  req.ThreadID,
		CommentID: req.CommentID,
		SectionID: req.SectionID,
		Text:      req.Text,
	})

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success record activity", res))
}

func (c *collabController) GetLocks(ctx *fiber.Ctx) error {
	locks, err := c.locks.Active(ctx.UserContext(), ctx.Params("projectId"))
	if err != nil {
		return toApiError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get locks", locks))
}
