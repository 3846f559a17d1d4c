package models

// ItemSearchParams are the arguments of the item_search tool.
type ItemSearchParams struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}
