package services

import (
	"fmt"
	"log"
	"time"
)

// IsCarAvailable 檢查車輛在 [start, end) 區間是否沒有任何未取消的租約重疊。
// excludeRentalID > 0 時排除該筆租約（編輯或確認既有租約時重檢用）。
// 純查詢，無副作用；建立租約與轉入 confirmed 前都會在交易內再跑一次。
func IsCarAvailable(store Store, carID int, start, end time.Time, excludeRentalID int) (bool, error) {
	if carID <= 0 {
		return false, fmt.Errorf("invalid car id %d", carID)
	}
	if !end.After(start) {
		return false, fmt.Errorf("end date %v must be after start date %v", end, start)
	}

	count, err := store.CountOverlappingRentals(carID, start, end, excludeRentalID)
	if err != nil {
		log.Printf("Failed to count overlapping rentals for car %d: %v", carID, err)
		return false, fmt.Errorf("failed to check car availability: %w", err)
	}
	return count == 0, nil
}
