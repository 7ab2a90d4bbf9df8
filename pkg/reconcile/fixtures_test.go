package reconcile

import "time"

func fp(v float64) *float64 { return &v }

func sp(s string) *string { return &s }

func tp(t time.Time) *time.Time { return &t }

// day returns noon UTC of the given date
func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func completedCount(id string, teamID *string, date time.Time, hours float64) InventoryCount {
	created := date.Add(-time.Duration(hours * float64(time.Hour)))
	return InventoryCount{
		ID:        id,
		TeamID:    teamID,
		CountDate: date,
		Status:    CountStatusCompleted,
		CreatedAt: created,
		UpdatedAt: date,
	}
}

func countLine(id, countID, itemID string, inStock, actual *float64) InventoryCountItem {
	return InventoryCountItem{
		ID:              id,
		CountID:         countID,
		ItemID:          itemID,
		InStockQuantity: inStock,
		ActualQuantity:  actual,
	}
}

func pricedItem(id, name string, unitCost float64) InventoryItem {
	return InventoryItem{ID: id, Name: name, UnitCost: fp(unitCost)}
}
