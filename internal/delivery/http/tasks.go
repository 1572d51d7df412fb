package http

import (
	"net/http"
	"strconv"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
)

func (h *HttpAPIHandler) SetupTasks(base *echo.Group) {
	v1 := base.Group("/v1/tasks")
	{
		v1.POST("", h.CreateTask)
		v1.GET("", h.ListTasks)
		v1.GET("/:id", h.GetTask)
		v1.PUT("/:id", h.UpdateTask)
		v1.DELETE("/:id", h.DeleteTask)
		v1.POST("/:id/run", h.RunTaskNow)
		v1.GET("/:id/runs", h.ListTaskRuns)
	}
}

func (h *HttpAPIHandler) CreateTask(c echo.Context) error {
	var req dto.CreateTaskRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}

	task := &model.TaskDefinition{
		Name:        req.Name,
		Description: req.Description,
		TaskType:    req.TaskType,
		Status:      model.TaskStatus(req.Status),
		Payload:     datatypes.JSON(req.Payload),
		Owner:       req.Owner,
	}
	if len(req.Tags) > 0 {
		task.Tags = marshalJSON(req.Tags)
	}
	if len(task.Payload) == 0 {
		task.Payload = datatypes.JSON([]byte(`{}`))
	}

	created, err := h.service.TaskService.CreateTask(c.Request().Context(), task, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "Task created", created))
}

func (h *HttpAPIHandler) GetTask(c echo.Context) error {
	task, err := h.service.TaskService.GetTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Task found", task))
}

func (h *HttpAPIHandler) ListTasks(c echo.Context) error {
	param := &model.GetTaskParam{}
	if status := c.QueryParam("status"); status != "" {
		param.Status = utils.ToPointer(model.TaskStatus(status))
	}
	if taskType := c.QueryParam("task_type"); taskType != "" {
		param.TaskType = utils.ToPointer(taskType)
	}
	if limit := queryInt(c, "limit"); limit > 0 {
		param.Limit = utils.ToPointer(limit)
	}

	tasks, err := h.service.TaskService.ListTasks(c.Request().Context(), param)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Tasks listed", tasks))
}

func (h *HttpAPIHandler) UpdateTask(c echo.Context) error {
	var req dto.UpdateTaskRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}

	task := &model.TaskDefinition{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		TaskType:    req.TaskType,
		Status:      model.TaskStatus(req.Status),
		Owner:       req.Owner,
	}
	if len(req.Payload) > 0 {
		task.Payload = datatypes.JSON(req.Payload)
	}
	if len(req.Tags) > 0 {
		task.Tags = marshalJSON(req.Tags)
	}

	updated, err := h.service.TaskService.UpdateTask(c.Request().Context(), task, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Task updated", updated))
}

func (h *HttpAPIHandler) DeleteTask(c echo.Context) error {
	if err := h.service.TaskService.DeleteTask(c.Request().Context(), c.Param("id"), actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Task deleted", nil))
}

func (h *HttpAPIHandler) RunTaskNow(c echo.Context) error {
	run, err := h.service.SchedulerService.RunTaskNow(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewBaseResponse(http.StatusAccepted, "Task run started", run))
}

func (h *HttpAPIHandler) ListTaskRuns(c echo.Context) error {
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = 50
	}
	runs, err := h.service.TaskService.ListRuns(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Runs listed", runs))
}

func queryInt(c echo.Context, name string) int {
	val, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return val
}
