package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
)

var ErrTodoNotFound = errors.New("todo not found")

// TodoStatus filters listing by completion state.
type TodoStatus string

const (
	TodoStatusAll       TodoStatus = "all"
	TodoStatusActive    TodoStatus = "active"
	TodoStatusCompleted TodoStatus = "completed"
)

func (s TodoStatus) Valid() bool {
	return s == TodoStatusAll || s == TodoStatusActive || s == TodoStatusCompleted
}

type TodoListQuery struct {
	PageRequest
	Status TodoStatus
}

type TodoRepository interface {
	Create(todo *domain.Todo) error
	FindByID(id uint) (*domain.Todo, error)
	ListPaged(q TodoListQuery) (PageResult[domain.Todo], error)
	Update(todo *domain.Todo) error
	Delete(id uint) error
}

type gormTodoRepository struct {
	db *gorm.DB
}

func NewTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func (r *gormTodoRepository) Create(todo *domain.Todo) error {
	return r.db.Create(todo).Error
}

func (r *gormTodoRepository) FindByID(id uint) (*domain.Todo, error) {
	var todo domain.Todo
	if err := r.db.First(&todo, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	return &todo, nil
}

func (r *gormTodoRepository) ListPaged(q TodoListQuery) (PageResult[domain.Todo], error) {
	page := normalizePageRequest(q.PageRequest)

	base := r.db.Model(&domain.Todo{})
	switch q.Status {
	case TodoStatusActive, "":
		base = base.Where("is_completed = ?", false)
	case TodoStatusCompleted:
		base = base.Where("is_completed = ?", true)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return PageResult[domain.Todo]{}, err
	}

	var items []domain.Todo
	err := base.
		Order("due_date asc NULLS LAST").
		Order("created_at asc").
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&items).Error
	if err != nil {
		return PageResult[domain.Todo]{}, err
	}

	return PageResult[domain.Todo]{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, page.PageSize),
	}, nil
}

func (r *gormTodoRepository) Update(todo *domain.Todo) error {
	return r.db.Save(todo).Error
}

func (r *gormTodoRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Todo{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}
