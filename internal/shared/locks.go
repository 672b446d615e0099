package shared

import "fmt"

// InventoryRowLockKey builds redis keys guarding a single (location, product) row.
func InventoryRowLockKey(locationID, productID int64) string {
	return fmt.Sprintf("stockledger:lock:inventory:%d:%d", locationID, productID)
}

// SequenceKey builds redis keys for document number counters.
func SequenceKey(prefix, day string) string {
	return fmt.Sprintf("stockledger:seq:%s:%s", prefix, day)
}

// ProductExistsCacheKey builds redis keys caching catalog lookups.
func ProductExistsCacheKey(productID int64) string {
	return fmt.Sprintf("stockledger:catalog:product:%d:exists", productID)
}
