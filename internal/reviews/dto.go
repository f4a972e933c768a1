package reviews

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const defaultLimit = 10

// Reviewer is the public author shape; email and role stay private.
type Reviewer struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

type ReviewDTO struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"productId"`
	User       *Reviewer `json:"user,omitempty"`
	Rating     int       `json:"rating"`
	Title      *string   `json:"title,omitempty"`
	Comment    string    `json:"comment"`
	IsVerified bool      `json:"isVerified"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type ReviewListResult = pagination.Page[ReviewDTO]

type CreateReviewInput struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Title   *string `json:"title,omitempty" validate:"omitempty,max=100"`
	Comment string  `json:"comment" validate:"required,max=1000"`
}

type UpdateReviewInput struct {
	Rating  *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Title   *string `json:"title,omitempty" validate:"omitempty,max=100"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,min=1,max=1000"`
}

type ApprovalInput struct {
	IsApproved *bool `json:"isApproved" validate:"required"`
}

func FromModel(r *models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:         r.ID,
		ProductID:  r.ProductID,
		Rating:     r.Rating,
		Title:      r.Title,
		Comment:    r.Comment,
		IsVerified: r.IsVerified,
		IsApproved: r.IsApproved,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.User != nil {
		dto.User = &Reviewer{ID: r.User.ID, FirstName: r.User.FirstName, LastName: r.User.LastName}
	}
	return dto
}
