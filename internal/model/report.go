package model

// Stats is an aggregate snapshot of the pool.
type Stats struct {
	Total    int64 `json:"total_proxies"`
	Active   int64 `json:"active_proxies"`
	Inactive int64 `json:"inactive_proxies"`
	// Percentage over tested proxies only, two decimals.
	AvgSuccessRate float64 `json:"average_success_rate"`
}

// RefreshReport is the outcome of one pool refresh run. It is not persisted.
type RefreshReport struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message,omitempty"`
	Fetched       int     `json:"fetched"`
	Parsed        int     `json:"parsed"`
	ParseFailures int     `json:"parse_failures"`
	Inserted      int     `json:"inserted"`
	Validated     int     `json:"validated"`
	ValidProxies  int     `json:"valid_proxies"`
	Pruned        int64   `json:"pruned"`
	ElapsedTime   float64 `json:"elapsed_time"` // Seconds
	Stats         Stats   `json:"stats"`
}
