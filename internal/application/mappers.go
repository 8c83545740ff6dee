package application

import "github.com/pos-platform/ledger-service/internal/domain"

func toLedgerEntryDTO(entry *domain.StockLedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		EntryID:        entry.EntryID.String(),
		ProductID:      entry.ProductID,
		Action:         entry.Action.String(),
		ChangeAmount:   entry.ChangeAmount,
		QuantityBefore: entry.QuantityBefore,
		QuantityAfter:  entry.QuantityAfter,
		PriceBefore:    entry.PriceBefore,
		PriceAfter:     entry.PriceAfter,
		ReferenceID:    entry.ReferenceID,
		ReferenceType:  entry.ReferenceType,
		Notes:          entry.Notes,
		LocationID:     entry.LocationID,
		BatchNumber:    entry.BatchNumber,
		ExpiryDate:     entry.ExpiryDate,
		PerformedBy:    entry.PerformedBy,
		CreatedAt:      entry.CreatedAt,
	}
}

func toLedgerEntryDTOs(aggregates []*domain.LedgerEntryAggregate) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, len(aggregates))
	for i, agg := range aggregates {
		dtos[i] = toLedgerEntryDTO(&agg.Entry)
	}
	return dtos
}

func toStockUpdateDTO(update *domain.StockUpdate) *StockUpdateDTO {
	if update == nil {
		return nil
	}
	return &StockUpdateDTO{
		ProductID:     update.ProductID,
		PreviousStock: update.PreviousStock,
		NewStock:      update.NewStock,
		StockChange:   update.StockChange,
	}
}

func toProductStockDTO(product *domain.Product) *ProductStockDTO {
	return &ProductStockDTO{
		ProductID:     product.ProductID,
		Name:          product.Name,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
		Deleted:       product.Deleted,
		UpdatedAt:     product.UpdatedAt,
	}
}

func toDomainInput(cmd RecordEntryCommand) domain.LedgerEntryInput {
	return domain.LedgerEntryInput{
		ProductID:      cmd.ProductID,
		Action:         domain.Action(cmd.Action),
		ChangeAmount:   cmd.ChangeAmount,
		QuantityBefore: cmd.QuantityBefore,
		QuantityAfter:  cmd.QuantityAfter,
		PriceBefore:    cmd.PriceBefore,
		PriceAfter:     cmd.PriceAfter,
		ReferenceID:    cmd.ReferenceID,
		ReferenceType:  cmd.ReferenceType,
		Notes:          cmd.Notes,
		LocationID:     cmd.LocationID,
		BatchNumber:    cmd.BatchNumber,
		ExpiryDate:     cmd.ExpiryDate,
	}
}
