package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/slug"
)

// Service exposes the category tree.
type Service interface {
	List(ctx context.Context, tree bool) ([]CategoryDTO, error)
	GetBySlug(ctx context.Context, slug string) (*CategoryDTO, error)
	Create(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*CategoryDTO, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type categoryStore interface {
	Create(ctx context.Context, category *models.Category) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
	ListActive(ctx context.Context) ([]models.Category, error)
	ConflictingField(ctx context.Context, name, slug string, excludeID *uuid.UUID) (string, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type service struct {
	repo categoryStore
}

func NewService(repo categoryStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, tree bool) ([]CategoryDTO, error) {
	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	if tree {
		return BuildTree(list), nil
	}
	out := make([]CategoryDTO, 0, len(list))
	for i := range list {
		out = append(out, FromModel(&list[i]))
	}
	return out, nil
}

func (s *service) GetBySlug(ctx context.Context, value string) (*CategoryDTO, error) {
	category, err := s.repo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !category.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	dto := FromModel(category)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	categorySlug := slug.Make(name)
	if categorySlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
	}
	if err := s.checkUnique(ctx, name, categorySlug, nil); err != nil {
		return nil, err
	}
	if input.ParentID != nil {
		if _, err := s.repo.FindByID(ctx, *input.ParentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "parent category not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load parent category")
		}
	}

	category := &models.Category{
		Name:        name,
		Slug:        categorySlug,
		Description: input.Description,
		Image:       input.Image,
		ParentID:    input.ParentID,
		IsActive:    true,
		SortOrder:   input.SortOrder,
		Featured:    input.Featured,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, mapWriteError(err, "create category")
	}
	dto := FromModel(category)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*CategoryDTO, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		if name != category.Name {
			categorySlug := slug.Make(name)
			if categorySlug == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
			}
			if err := s.checkUnique(ctx, name, categorySlug, &category.ID); err != nil {
				return nil, err
			}
			updates["name"] = name
			updates["slug"] = categorySlug
			category.Name = name
			category.Slug = categorySlug
		}
	}
	if input.Description != nil {
		updates["description"] = *input.Description
		category.Description = input.Description
	}
	if input.Image != nil {
		updates["image"] = *input.Image
		category.Image = input.Image
	}
	if input.ClearParent {
		updates["parent_id"] = nil
		category.ParentID = nil
	} else if input.ParentID != nil {
		if err := s.checkParent(ctx, category.ID, *input.ParentID); err != nil {
			return nil, err
		}
		updates["parent_id"] = *input.ParentID
		category.ParentID = input.ParentID
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
		category.IsActive = *input.IsActive
	}
	if input.SortOrder != nil {
		updates["sort_order"] = *input.SortOrder
		category.SortOrder = *input.SortOrder
	}
	if input.Featured != nil {
		updates["featured"] = *input.Featured
		category.Featured = *input.Featured
	}

	if err := s.repo.Update(ctx, category.ID, updates); err != nil {
		return nil, mapWriteError(err, "update category")
	}
	dto := FromModel(category)
	return &dto, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return mapLookupError(err)
	}
	if err := s.repo.Update(ctx, id, map[string]any{"is_active": false}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate category")
	}
	return nil
}

func (s *service) checkUnique(ctx context.Context, name, categorySlug string, excludeID *uuid.UUID) error {
	field, err := s.repo.ConflictingField(ctx, name, categorySlug, excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check category uniqueness")
	}
	if field != "" {
		return pkgerrors.Duplicate(field, fmt.Sprintf("category %s already exists", field))
	}
	return nil
}

// checkParent walks up from parentID and rejects the move if it reaches id.
func (s *service) checkParent(ctx context.Context, id, parentID uuid.UUID) error {
	if parentID == id {
		return pkgerrors.New(pkgerrors.CodeValidation, "category cannot be its own parent")
	}
	seen := map[uuid.UUID]bool{}
	current := &parentID
	for current != nil {
		if *current == id {
			return pkgerrors.New(pkgerrors.CodeValidation, "parent would create a cycle")
		}
		if seen[*current] {
			return pkgerrors.New(pkgerrors.CodeValidation, "existing category chain is cyclic")
		}
		seen[*current] = true
		node, err := s.repo.FindByID(ctx, *current)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "parent category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load parent category")
		}
		current = node.ParentID
	}
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
}

func mapWriteError(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, "ux_categories_name"):
		return pkgerrors.Duplicate("name", "category name already exists")
	case db.IsUniqueViolation(err, "ux_categories_slug"):
		return pkgerrors.Duplicate("slug", "category slug already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
