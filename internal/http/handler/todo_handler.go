package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/http/response"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/service"
)

// Due dates travel as plain dates, not timestamps.
const dueDateLayout = "2006-01-02"

type TodoHandler struct {
	todoSvc *service.TodoService
}

func NewTodoHandler(todoSvc *service.TodoService) *TodoHandler {
	return &TodoHandler{todoSvc: todoSvc}
}

func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.todoSvc.List(
		repository.TodoStatus(q.Get("status")),
		repository.PageRequest{Page: page, PageSize: pageSize},
	)
	if err != nil {
		writeTodoError(w, r, err, "failed to list todos")
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"todos":       result.Items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

type createTodoRequest struct {
	Title   string  `json:"title"`
	Detail  string  `json:"detail"`
	DueDate *string `json:"due_date"`
}

func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "due_date must be YYYY-MM-DD", nil)
		return
	}

	todo, err := h.todoSvc.Create(req.Title, req.Detail, due)
	if err != nil {
		writeTodoError(w, r, err, "failed to create todo")
		return
	}
	response.JSON(w, r, http.StatusCreated, todo)
}

type updateTodoRequest struct {
	Title       *string `json:"title"`
	Detail      *string `json:"detail"`
	DueDate     *string `json:"due_date"`
	IsCompleted *bool   `json:"is_completed"`
}

func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid todo id", nil)
		return
	}

	// Decode twice: the struct for values, the raw map to tell an absent
	// due_date apart from an explicit null.
	body, err := readBody(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	var req updateTodoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	update := service.TodoUpdate{
		Title:       req.Title,
		Detail:      req.Detail,
		IsCompleted: req.IsCompleted,
	}
	if _, present := fields["due_date"]; present {
		update.DueDateSet = true
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "due_date must be YYYY-MM-DD", nil)
			return
		}
		update.DueDate = due
	}

	todo, err := h.todoSvc.Update(id, update)
	if err != nil {
		writeTodoError(w, r, err, "failed to update todo")
		return
	}
	response.JSON(w, r, http.StatusOK, todo)
}

func (h *TodoHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid todo id", nil)
		return
	}

	todo, err := h.todoSvc.Complete(id)
	if err != nil {
		writeTodoError(w, r, err, "failed to complete todo")
		return
	}
	response.JSON(w, r, http.StatusOK, todo)
}

func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := todoIDParam(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid todo id", nil)
		return
	}

	if err := h.todoSvc.Delete(id); err != nil {
		writeTodoError(w, r, err, "failed to delete todo")
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

func todoIDParam(r *http.Request) (uint, error) {
	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id64), nil
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dueDateLayout, *raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<16))
}

func writeTodoError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, repository.ErrTodoNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "todo not found", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", fallback, nil)
	}
}
