package cache

import (
	"fmt"
	"time"
)

// Default TTLs per entity kind. Rate-limit windows are caller-specified and
// never go through the facade.
const (
	TTLProduct   = 30 * time.Minute
	TTLCategory  = time.Hour
	TTLCart      = 24 * time.Hour
	TTLSession   = 24 * time.Hour
	TTLGeneric   = time.Hour
	TTLAnalytics = 5 * time.Minute
)

// Key builders for the shared namespace. Other services read the same store,
// so the shapes below are part of the external contract.
func ProductKey(id string) string     { return "product:" + id }
func CartKey(userID string) string    { return "cart:" + userID }
func SessionKey(userID string) string { return "session:" + userID }
func AnalyticsKey(name string) string { return "analytics:" + name }
func CategoriesAllKey() string        { return "categories:all" }

func CategoryProductsKey(categoryID, queryHash string) string {
	return fmt.Sprintf("category:%s:products:%s", categoryID, queryHash)
}

// CategoryProductsPattern matches every cached listing for a category,
// regardless of query.
func CategoryProductsPattern(categoryID string) string {
	return fmt.Sprintf("category:%s:products:*", categoryID)
}
