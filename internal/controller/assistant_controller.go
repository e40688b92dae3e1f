package controller

import (
	"insight-assistant-be/internal/dto"
	"insight-assistant-be/internal/pkg/serverutils"
	"insight-assistant-be/internal/service"
	"insight-assistant-be/pkg/dataset"

	"github.com/gofiber/fiber/v2"
)

const defaultRunHistory = 20

type IAssistantController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	ShowSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	UploadDataset(ctx *fiber.Ctx) error
	SubmitTurn(ctx *fiber.Ctx) error
	Advance(ctx *fiber.Ctx) error
	Messages(ctx *fiber.Ctx) error
	Runs(ctx *fiber.Ctx) error
}

type assistantController struct {
	assistantService service.IAssistantService
}

func NewAssistantController(assistantService service.IAssistantService) IAssistantController {
	return &assistantController{
		assistantService: assistantService,
	}
}

func (c *assistantController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/assistant/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("sessions", c.CreateSession)
	h.Get("sessions/:id", c.ShowSession)
	h.Delete("sessions/:id", c.DeleteSession)
	h.Post("sessions/:id/datasets", c.UploadDataset)
	h.Post("sessions/:id/turns", c.SubmitTurn)
	h.Post("sessions/:id/advance", c.Advance)
	h.Get("sessions/:id/messages", c.Messages)
	h.Get("sessions/:id/runs", c.Runs)
}

func userID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals("user_id").(string)
	return id
}

func (c *assistantController) CreateSession(ctx *fiber.Ctx) error {
	res, err := c.assistantService.CreateSession(ctx.UserContext(), userID(ctx))
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *assistantController) ShowSession(ctx *fiber.Ctx) error {
	res, err := c.assistantService.GetSession(ctx.UserContext(), userID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *assistantController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.assistantService.DeleteSession(ctx.UserContext(), userID(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *assistantController) UploadDataset(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.assistantService.UploadDataset(ctx.UserContext(), userID(ctx), ctx.Params("id"), dataset.Upload{
		Filename: fileHeader.Filename,
		MIMEType: fileHeader.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success stage dataset", res))
}

func (c *assistantController) SubmitTurn(ctx *fiber.Ctx) error {
	var req dto.SubmitTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.assistantService.SubmitTurn(ctx.UserContext(), userID(ctx), ctx.Params("id"), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Success submit turn", res))
}

func (c *assistantController) Advance(ctx *fiber.Ctx) error {
	res, err := c.assistantService.Advance(ctx.UserContext(), userID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success advance run", res))
}

func (c *assistantController) Messages(ctx *fiber.Ctx) error {
	res, err := c.assistantService.Messages(ctx.UserContext(), userID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get messages", res))
}

func (c *assistantController) Runs(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", defaultRunHistory)
	res, err := c.assistantService.Runs(ctx.UserContext(), userID(ctx), ctx.Params("id"), limit)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get runs", res))
}
