package models

import "time"

type Category string

const (
	CategoryWomanSeeksMan Category = "WOMAN_SEEKS_MAN"
	CategoryTrans         Category = "TRANS"
	CategoryManSeeksMan   Category = "MAN_SEEKS_MAN"
	CategoryMassageCenter Category = "MASSAGE_CENTER"
)

// SourcePrefix is the short code prepended to fingerprints of scraped listings.
func (c Category) SourcePrefix() string {
	switch c {
	case CategoryWomanSeeksMan:
		return "dc"
	case CategoryTrans:
		return "tr"
	case CategoryManSeeksMan:
		return "uc"
	case CategoryMassageCenter:
		return "cm"
	default:
		return "xx"
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryWomanSeeksMan, CategoryTrans, CategoryManSeeksMan, CategoryMassageCenter:
		return true
	}
	return false
}

type Window string

const (
	WindowDay   Window = "DAY"
	WindowNight Window = "NIGHT"
)

// ProductKind selects the schedule generation rule of a promotion product.
type ProductKind string

const (
	ProductImmediate ProductKind = "IMMEDIATE"
	ProductDay       ProductKind = "DAY"
	ProductNight     ProductKind = "NIGHT"
	ProductTopFixed  ProductKind = "TOP_FIXED"
)

func (k ProductKind) Valid() bool {
	switch k {
	case ProductImmediate, ProductDay, ProductNight, ProductTopFixed:
		return true
	}
	return false
}

type PurchaseStatus string

const (
	PurchaseActive  PurchaseStatus = "ACTIVE"
	PurchaseExpired PurchaseStatus = "EXPIRED"
)

type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "PENDING"
	ScheduleDone    ScheduleStatus = "DONE"
	ScheduleFailed  ScheduleStatus = "FAILED"
)

type Listing struct {
	ID          int64      `json:"id"`
	SourceID    string     `json:"source_id,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	City        string     `json:"city"`
	Zone        string     `json:"zone,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	WhatsApp    string     `json:"whatsapp,omitempty"`
	Age         int        `json:"age,omitempty"`
	Photos      []string   `json:"photos"`
	Price       int        `json:"price,omitempty"`
	UserID      *int64     `json:"user_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   time.Time  `json:"expires_at"`
	PublishedAt time.Time  `json:"published_at"`
	BumpPackage string     `json:"bump_package,omitempty"`
	BumpSlot    string     `json:"bump_time_slot,omitempty"`
	BumpCount   int        `json:"bump_count"`
	MaxBumps    int        `json:"max_bumps"`
	NextBumpAt  *time.Time `json:"next_bump_at,omitempty"`
	LastBumpAt  *time.Time `json:"last_bump_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type PromotionProduct struct {
	ID                int64       `json:"id"`
	Code              string      `json:"code"`
	Label             string      `json:"label"`
	Kind              ProductKind `json:"kind"`
	QuantityPerWindow int         `json:"quantity_per_window"`
	DurationDays      int         `json:"duration_days"`
	CreditsCost       int         `json:"credits_cost"`
	Active            bool        `json:"active"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Window reports the broad time band the product fires within.
func (p PromotionProduct) Window() Window {
	if p.Kind == ProductNight {
		return WindowNight
	}
	return WindowDay
}

type Purchase struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	ListingID int64          `json:"listing_id"`
	ProductID int64          `json:"product_id"`
	Status    PurchaseStatus `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	// SlotTemplate is the JSON-encoded template the schedule was generated from.
	SlotTemplate string    `json:"slot_template,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ScheduleEntry struct {
	ID         int64          `json:"id"`
	PurchaseID int64          `json:"purchase_id"`
	ListingID  int64          `json:"listing_id"`
	Window     Window         `json:"window"`
	RunAt      time.Time      `json:"run_at"`
	Status     ScheduleStatus `json:"status"`
}

type BumpLog struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	TimeSlot  string    `json:"time_slot"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID        int64
	Email     string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type IngestionRun struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Imported   int        `json:"imported"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	ErrorLog   string     `json:"error_sample,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
