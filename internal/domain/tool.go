package domain

type ToolStatus string

const (
	ToolStatusAvailable   ToolStatus = "available"
	ToolStatusUnavailable ToolStatus = "unavailable"
)

// Tool is the listing a booking references. The booking engine only reads it.
type Tool struct {
	ID              int32      `json:"id"`
	OwnerID         int32      `json:"owner_id"`
	Name            string     `json:"name"`
	DailyPriceCents int64      `json:"daily_price_cents"`
	DepositCents    int64      `json:"deposit_cents"`
	Status          ToolStatus `json:"status"`
}
