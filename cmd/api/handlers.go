package main

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pos-platform/ledger-service/internal/application"
	"github.com/pos-platform/ledger-service/pkg/api"
	"github.com/pos-platform/ledger-service/pkg/errors"
	"github.com/pos-platform/ledger-service/pkg/middleware"
)

type entryPayload struct {
	ProductID      string     `json:"productId" binding:"required,product_id"`
	Action         string     `json:"action" binding:"required,ledger_action"`
	ChangeAmount   *int       `json:"changeAmount" binding:"required"`
	QuantityBefore *int       `json:"quantityBefore" binding:"required"`
	QuantityAfter  *int       `json:"quantityAfter" binding:"required"`
	PriceBefore    *int64     `json:"priceBefore"`
	PriceAfter     *int64     `json:"priceAfter"`
	ReferenceID    string     `json:"referenceId" binding:"omitempty,max=128"`
	ReferenceType  string     `json:"referenceType" binding:"omitempty,max=64"`
	Notes          string     `json:"notes" binding:"omitempty,max=1000,safe_string"`
	LocationID     string     `json:"locationId" binding:"omitempty,max=64"`
	BatchNumber    string     `json:"batchNumber" binding:"omitempty,max=64"`
	ExpiryDate     *time.Time `json:"expiryDate"`
}

type recordEntryRequest struct {
	entryPayload
	PerformedBy string `json:"performedBy" binding:"required,max=128"`
}

type bulkOverridesPayload struct {
	Action        string `json:"action" binding:"omitempty,ledger_action"`
	ReferenceID   string `json:"referenceId" binding:"omitempty,max=128"`
	ReferenceType string `json:"referenceType" binding:"omitempty,max=64"`
	Notes         string `json:"notes" binding:"omitempty,max=1000,safe_string"`
}

type recordBulkRequest struct {
	Entries     []entryPayload       `json:"entries" binding:"required,min=1,max=1000,dive"`
	Overrides   bulkOverridesPayload `json:"overrides"`
	PerformedBy string               `json:"performedBy" binding:"required,max=128"`
}

func toEntryCommand(p entryPayload, performedBy string) application.RecordEntryCommand {
	return application.RecordEntryCommand{
		ProductID:      p.ProductID,
		Action:         p.Action,
		ChangeAmount:   p.ChangeAmount,
		QuantityBefore: p.QuantityBefore,
		QuantityAfter:  p.QuantityAfter,
		PriceBefore:    p.PriceBefore,
		PriceAfter:     p.PriceAfter,
		ReferenceID:    p.ReferenceID,
		ReferenceType:  p.ReferenceType,
		Notes:          p.Notes,
		LocationID:     p.LocationID,
		BatchNumber:    p.BatchNumber,
		ExpiryDate:     p.ExpiryDate,
		PerformedBy:    performedBy,
	}
}

func recordEntryHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordEntryRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		result, err := service.RecordEntry(c.Request.Context(), toEntryCommand(req.entryPayload, req.PerformedBy))
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.RespondCreated(c, result)
	}
}

func recordBulkHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordBulkRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		cmd := application.RecordBulkCommand{
			Entries:     make([]application.BulkEntryItem, 0, len(req.Entries)),
			PerformedBy: req.PerformedBy,
			Overrides: application.BulkOverrides{
				Action:        req.Overrides.Action,
				ReferenceID:   req.Overrides.ReferenceID,
				ReferenceType: req.Overrides.ReferenceType,
				Notes:         req.Overrides.Notes,
			},
		}
		for _, p := range req.Entries {
			cmd.Entries = append(cmd.Entries, application.BulkEntryItem{
				ProductID:      p.ProductID,
				Action:         p.Action,
				ChangeAmount:   p.ChangeAmount,
				QuantityBefore: p.QuantityBefore,
				QuantityAfter:  p.QuantityAfter,
				PriceBefore:    p.PriceBefore,
				PriceAfter:     p.PriceAfter,
				ReferenceID:    p.ReferenceID,
				ReferenceType:  p.ReferenceType,
				Notes:          p.Notes,
				LocationID:     p.LocationID,
				BatchNumber:    p.BatchNumber,
				ExpiryDate:     p.ExpiryDate,
			})
		}

		result, err := service.RecordBulk(c.Request.Context(), cmd)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		// The batch call succeeds even when individual entries failed; the
		// partition of successes and failures is the response body
		middleware.RespondCreated(c, result)
	}
}

func listEntriesHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID := c.Query("productId")
		if productID == "" {
			middleware.AbortWithAppError(c, errors.ErrValidation("productId query parameter is required"))
			return
		}

		timeRange, hasRange, appErr := api.ParseTimeRange(c)
		if appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		if hasRange {
			entries, err := service.GetEntriesByTimeRange(c.Request.Context(), application.GetEntriesByTimeRangeQuery{
				ProductID: productID,
				Start:     timeRange.Start,
				End:       timeRange.End,
			})
			if err != nil {
				middleware.AbortWithError(c, err)
				return
			}
			middleware.RespondOK(c, gin.H{"data": entries, "count": len(entries)})
			return
		}

		page := api.ParsePagination(c)
		entries, err := service.GetEntriesByProduct(c.Request.Context(), application.GetEntriesByProductQuery{
			ProductID: productID,
			Limit:     page.Limit,
			Offset:    page.Offset,
		})
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.RespondOK(c, api.NewPageResponse(entries, page))
	}
}

func getEntryHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := service.GetEntry(c.Request.Context(), application.GetEntryQuery{
			EntryID: c.Param("entryId"),
		})
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.RespondOK(c, entry)
	}
}

func getEntriesByReferenceHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := service.GetEntriesByReference(c.Request.Context(), application.GetEntriesByReferenceQuery{
			ReferenceID: c.Param("referenceId"),
		})
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.RespondOK(c, gin.H{"data": entries, "count": len(entries)})
	}
}

func getProductStockHandler(service *application.LedgerApplicationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stock, err := service.GetProductStock(c.Request.Context(), application.GetProductStockQuery{
			ProductID: c.Param("productId"),
		})
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		middleware.RespondOK(c, stock)
	}
}
