package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// StockShortage describes the line that could not be reserved.
type StockShortage struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Requested   int    `json:"requested"`
}

// Reserve decrements stock for every line of order using tx and confirms the
// order. Each line is one conditional UPDATE; the first shortfall returns an
// InsufficientStock error and the caller's rollback undoes earlier lines.
func Reserve(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if order.StockReserved {
		return nil
	}

	for i := range order.Items {
		item := &order.Items[i]
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		reserved, err := reserveLine(ctx, tx, item)
		if err != nil {
			return err
		}
		item.ReservedQuantity = reserved
		if err := tx.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ?", item.ID).
			Update("reserved_quantity", reserved).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reserved quantity")
		}
	}

	updates := map[string]any{"stock_reserved": true}
	if order.Status == enums.OrderStatusPending {
		updates["status"] = enums.OrderStatusConfirmed
	}
	if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm order")
	}
	order.StockReserved = true
	if status, ok := updates["status"].(enums.OrderStatus); ok {
		order.Status = status
	}
	return nil
}

// reserveLine returns how many units were taken from stock: the line quantity
// for tracked products, zero for untracked ones.
func reserveLine(ctx context.Context, tx *gorm.DB, item *models.OrderItem) (int, error) {
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND track_quantity = ? AND stock >= ?", item.ProductID, true, item.Quantity).
		Updates(map[string]any{
			"stock":       gorm.Expr("stock - ?", item.Quantity),
			"sales_count": gorm.Expr("sales_count + ?", item.Quantity),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return item.Quantity, nil
	}

	res = tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND track_quantity = ?", item.ProductID, false).
		Update("sales_count", gorm.Expr("sales_count + ?", item.Quantity))
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return 0, nil
	}

	return 0, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+item.ProductName).
		WithDetails(StockShortage{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Requested:   item.Quantity,
		})
}

// RestoreStock gives back exactly what Reserve took and clears the reserved flag.
func RestoreStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !order.StockReserved {
		return nil
	}
	for _, item := range order.Items {
		updates := map[string]any{"sales_count": gorm.Expr("sales_count - ?", item.Quantity)}
		if item.ReservedQuantity > 0 {
			updates["stock"] = gorm.Expr("stock + ?", item.ReservedQuantity)
		}
		err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			Updates(updates).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
		}
	}
	if err := tx.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Update("stock_reserved", false).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear reservation flag")
	}
	order.StockReserved = false
	return nil
}
