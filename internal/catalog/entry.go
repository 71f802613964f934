package catalog

import (
	"math"
	"time"
)

const (
	DefaultKbRef   = "default-kb-id"
	DefaultFlowRef = "default-chat-id"
)

// Entry is one publishable knowledge-base widget.
type Entry struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	IconURL         *string   `json:"iconUrl" db:"icon_url"`
	EmbedCode       string    `json:"embedCode" db:"embed_code"`
	ExternalKbRef   string    `json:"externalKbRef" db:"external_kb_ref"`
	ExternalFlowRef string    `json:"externalFlowRef" db:"external_flow_ref"`
	CreatedBy       string    `json:"createdBy" db:"created_by"`
	IsActive        bool      `json:"isActive" db:"is_active"`
	ViewCount       int64     `json:"viewCount" db:"view_count"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// Input carries the client-settable fields for create and full update.
// There is deliberately no creator field.
type Input struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	IconURL         *string `json:"iconUrl"`
	EmbedCode       string  `json:"embedCode"`
	ExternalKbRef   string  `json:"externalKbRef"`
	ExternalFlowRef string  `json:"externalFlowRef"`
	IsActive        *bool   `json:"isActive"`
}

// Patch applies only the non-nil fields.
type Patch struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	IconURL         *string `json:"iconUrl"`
	EmbedCode       *string `json:"embedCode"`
	ExternalKbRef   *string `json:"externalKbRef"`
	ExternalFlowRef *string `json:"externalFlowRef"`
	IsActive        *bool   `json:"isActive"`
	// ViewCount overwrites the counter (admin reset).
	ViewCount *int64 `json:"viewCount"`
	// IncrementViews adds one to the counter atomically.
	IncrementViews bool `json:"incrementViews"`
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Description == nil && p.IconURL == nil &&
		p.EmbedCode == nil && p.ExternalKbRef == nil && p.ExternalFlowRef == nil &&
		p.IsActive == nil && p.ViewCount == nil && !p.IncrementViews
}

const (
	DefaultLimit = 12
	MaxLimit     = 100
	// MaxPage keeps (Page-1)*Limit inside int32 for every accepted limit.
	MaxPage = math.MaxInt32 / MaxLimit
)

type Filter struct {
	Search          string
	Page            int
	Limit           int
	IncludeInactive bool
}

func (f *Filter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
}

func (f Filter) offset() int {
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page struct {
	Entries    []Entry    `json:"entries"`
	Pagination Pagination `json:"pagination"`
}

type BatchAction string

const (
	BatchActivate   BatchAction = "activate"
	BatchDeactivate BatchAction = "deactivate"
	BatchDelete     BatchAction = "delete"
)

func (a BatchAction) valid() bool {
	switch a {
	case BatchActivate, BatchDeactivate, BatchDelete:
		return true
	}
	return false
}
