package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/LinglingXiang/exodus-gw/internal/models"
	"github.com/LinglingXiang/exodus-gw/internal/types"
	"github.com/LinglingXiang/exodus-gw/internal/validator"
)

var tracer = otel.Tracer("github.com/LinglingXiang/exodus-gw/cmd/exodus-gw-migrate/internal/routes")

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	NotFoundError = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
)

type RevisionReader interface {
	Current(ctx context.Context) (string, error)
}

type Handler struct {
	DB       *gorm.DB
	Migrator RevisionReader
	// Revision the database should be at
	Head string
}

func BuildEcho(logger *slog.Logger, h *Handler) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true

	validate := validator.Create()
	e.Validator = &validate

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(
		otelecho.Middleware("exodus-gw"),
		slogecho.NewWithConfig(logger, slogecho.Config{}),
		middleware.Recover(),
	)

	e.GET("/healthcheck", h.Healthcheck)
	e.GET("/healthcheck-db", h.HealthcheckDB)
	e.GET("/task/:task_id", h.GetTask)

	return e, nil
}

func (h *Handler) Healthcheck(c echo.Context) error {
	return c.JSON(http.StatusOK, types.Health{Detail: "exodus-gw is running"})
}

// Reports whether the database answers and which revision it is at
func (h *Handler) HealthcheckDB(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "HealthcheckDB")
	defer span.End()

	var one int
	if err := h.DB.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database unreachable")
		return echo.NewHTTPError(http.StatusServiceUnavailable, types.StringError("database unreachable"))
	}

	current, err := h.Migrator.Current(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read applied revision")
		return InternalServerError
	}

	span.SetAttributes(
		attribute.String("revision.current", current),
		attribute.String("revision.head", h.Head),
	)

	return c.JSON(http.StatusOK, types.DBHealth{
		Detail:   "DB is running",
		Current:  current,
		Head:     h.Head,
		UpToDate: current == h.Head,
	})
}

type taskParams struct {
	TaskID string `param:"task_id" validate:"required,uuid"`
}

func (h *Handler) GetTask(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetTask")
	defer span.End()

	var params taskParams
	if err := c.Bind(&params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to bind params")
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError("invalid task id"))
	}
	span.SetAttributes(attribute.String("id.raw", params.TaskID))

	if err := c.Validate(&params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid task id")
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	id, err := uuid.Parse(params.TaskID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse task id")
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError("invalid task id"))
	}

	task, err := models.ByID[models.Task](ctx, h.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(
				http.StatusNotFound,
				types.StringError("No task found for ID="+id.String()),
			)
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch task")
		return InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fetched task")
	return c.JSON(http.StatusOK, task)
}
