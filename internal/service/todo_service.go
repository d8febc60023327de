package service

import (
	"strings"
	"time"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
)

const (
	maxTodoTitleLength  = 120
	maxTodoDetailLength = 1000
)

// TodoUpdate is a partial update; nil fields are left untouched. DueDateSet
// distinguishes "clear the due date" from "not provided".
type TodoUpdate struct {
	Title       *string
	Detail      *string
	DueDate     *time.Time
	DueDateSet  bool
	IsCompleted *bool
}

type TodoService struct {
	todos repository.TodoRepository
	now   func() time.Time
}

func NewTodoService(todos repository.TodoRepository) *TodoService {
	return &TodoService{todos: todos, now: time.Now}
}

func (s *TodoService) List(status repository.TodoStatus, page repository.PageRequest) (repository.PageResult[domain.Todo], error) {
	if status == "" {
		status = repository.TodoStatusActive
	}
	if !status.Valid() {
		return repository.PageResult[domain.Todo]{}, validationError("unknown status %q", status)
	}
	return s.todos.ListPaged(repository.TodoListQuery{PageRequest: page, Status: status})
}

func (s *TodoService) Get(id uint) (*domain.Todo, error) {
	return s.todos.FindByID(id)
}

func (s *TodoService) Create(title, detail string, dueDate *time.Time) (*domain.Todo, error) {
	if err := s.validateTitle(title); err != nil {
		return nil, err
	}
	if err := s.validateDetail(detail); err != nil {
		return nil, err
	}
	if err := s.validateDueDate(dueDate); err != nil {
		return nil, err
	}

	todo := &domain.Todo{Title: strings.TrimSpace(title), Detail: detail, DueDate: dueDate}
	if err := s.todos.Create(todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *TodoService) Update(id uint, update TodoUpdate) (*domain.Todo, error) {
	todo, err := s.todos.FindByID(id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		if err := s.validateTitle(*update.Title); err != nil {
			return nil, err
		}
		todo.Title = strings.TrimSpace(*update.Title)
	}
	if update.Detail != nil {
		if err := s.validateDetail(*update.Detail); err != nil {
			return nil, err
		}
		todo.Detail = *update.Detail
	}
	if update.DueDateSet {
		if err := s.validateDueDate(update.DueDate); err != nil {
			return nil, err
		}
		todo.DueDate = update.DueDate
	}
	if update.IsCompleted != nil {
		todo.IsCompleted = *update.IsCompleted
	}

	if err := s.todos.Update(todo); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *TodoService) Complete(id uint) (*domain.Todo, error) {
	todo, err := s.todos.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !todo.IsCompleted {
		todo.IsCompleted = true
		if err := s.todos.Update(todo); err != nil {
			return nil, err
		}
	}
	return todo, nil
}

func (s *TodoService) Delete(id uint) error {
	return s.todos.Delete(id)
}

func (s *TodoService) validateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return validationError("title is required")
	}
	if len([]rune(trimmed)) > maxTodoTitleLength {
		return validationError("title must be at most %d characters", maxTodoTitleLength)
	}
	return nil
}

func (s *TodoService) validateDetail(detail string) error {
	if len([]rune(detail)) > maxTodoDetailLength {
		return validationError("detail must be at most %d characters", maxTodoDetailLength)
	}
	return nil
}

// Due dates carry date precision; today is the earliest acceptable value.
func (s *TodoService) validateDueDate(due *time.Time) error {
	if due == nil {
		return nil
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(today) {
		return validationError("due date must not be in the past")
	}
	return nil
}
