package photos

// PaginatedLogs represents a paginated response with data and metadata
type PaginatedLogs struct {
	Data       []*AnalysisLog `json:"data"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	Total      int64          `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
}
