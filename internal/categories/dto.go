package categories

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// CategoryDTO is the public category shape; Children is only set for tree listings.
type CategoryDTO struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description *string       `json:"description,omitempty"`
	Image       *string       `json:"image,omitempty"`
	ParentID    *uuid.UUID    `json:"parentId,omitempty"`
	IsActive    bool          `json:"isActive"`
	SortOrder   int           `json:"sortOrder"`
	Featured    bool          `json:"featured"`
	Children    []CategoryDTO `json:"children,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// CreateCategoryInput is the admin create payload.
type CreateCategoryInput struct {
	Name        string     `json:"name" validate:"required,max=50"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500"`
	Image       *string    `json:"image,omitempty"`
	ParentID    *uuid.UUID `json:"parentId,omitempty"`
	SortOrder   int        `json:"sortOrder"`
	Featured    bool       `json:"featured"`
}

// UpdateCategoryInput carries optional changes. ClearParent detaches the
// category from its parent.
type UpdateCategoryInput struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=50"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500"`
	Image       *string    `json:"image,omitempty"`
	ParentID    *uuid.UUID `json:"parentId,omitempty"`
	ClearParent bool       `json:"clearParent,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	SortOrder   *int       `json:"sortOrder,omitempty"`
	Featured    *bool      `json:"featured,omitempty"`
}

func FromModel(c *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Image:       c.Image,
		ParentID:    c.ParentID,
		IsActive:    c.IsActive,
		SortOrder:   c.SortOrder,
		Featured:    c.Featured,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// BuildTree nests categories under their parents, preserving input order.
// Categories whose parent is not in the list become roots.
func BuildTree(list []models.Category) []CategoryDTO {
	present := make(map[uuid.UUID]bool, len(list))
	for _, c := range list {
		present[c.ID] = true
	}
	children := make(map[uuid.UUID][]models.Category)
	roots := make([]models.Category, 0)
	for _, c := range list {
		if c.ParentID != nil && present[*c.ParentID] && *c.ParentID != c.ID {
			children[*c.ParentID] = append(children[*c.ParentID], c)
			continue
		}
		roots = append(roots, c)
	}

	var build func(nodes []models.Category, depth int) []CategoryDTO
	build = func(nodes []models.Category, depth int) []CategoryDTO {
		out := make([]CategoryDTO, 0, len(nodes))
		for i := range nodes {
			dto := FromModel(&nodes[i])
			if depth < len(list) {
				if kids := children[nodes[i].ID]; len(kids) > 0 {
					dto.Children = build(kids, depth+1)
				}
			}
			out = append(out, dto)
		}
		return out
	}
	return build(roots, 0)
}
