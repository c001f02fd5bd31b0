package dto

type SearchRequest struct {
	Query string `json:"query" binding:"required,max=1000"`
	Limit int    `json:"limit" binding:"omitempty,min=1,max=100"`
}

type SearchResponse struct {
	WorkItemIDs []string `json:"work_item_ids"`
}
