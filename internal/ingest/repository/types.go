package repository

import (
	"time"

	"github.com/google/uuid"
)

// Make is a top-level reference entity, unique by its display value slug.
type Make struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayValue string    `json:"displayValue"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Model belongs to exactly one Make; unique per (make, display value).
type Model struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayValue string    `json:"displayValue"`
	MakeID       uuid.UUID `json:"makeId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Variant is globally unique by slug and associated many-to-many with models.
type Variant struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayValue string    `json:"displayValue"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Body is a top-level reference entity, unique by slug.
type Body struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayValue string    `json:"displayValue"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VariantYear scopes a production year to a model and optionally a variant.
type VariantYear struct {
	ID           uuid.UUID  `json:"id"`
	Year         int        `json:"year"`
	DisplayValue string     `json:"displayValue"`
	ModelID      uuid.UUID  `json:"modelId"`
	VariantID    *uuid.UUID `json:"variantId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// MetadataTuple is the uniqueness key of a VehicleMetadata record. Absent
// optional refs are uuid.Nil, which the store maps to its fixed sentinel.
type MetadataTuple struct {
	MakeID        uuid.UUID
	ModelID       uuid.UUID
	VariantID     uuid.UUID
	BodyID        uuid.UUID
	VariantYearID uuid.UUID
}

// VehicleMetadata is the aggregate record tying one unique reference tuple to
// scalar attributes, user-defined custom fields, and provenance.
type VehicleMetadata struct {
	ID              uuid.UUID      `json:"id"`
	MakeID          uuid.UUID      `json:"makeId"`
	ModelID         uuid.UUID      `json:"modelId"`
	VariantID       *uuid.UUID     `json:"variantId,omitempty"`
	BodyID          *uuid.UUID     `json:"bodyId,omitempty"`
	VariantYearID   *uuid.UUID     `json:"variantYearId,omitempty"`
	FuelType        *string        `json:"fuelType,omitempty"`
	Transmission    *string        `json:"transmission,omitempty"`
	EngineCapacity  *float64       `json:"engineCapacity,omitempty"`
	Power           *float64       `json:"power,omitempty"`
	Torque          *float64       `json:"torque,omitempty"`
	SeatingCapacity *int           `json:"seatingCapacity,omitempty"`
	CustomFields    map[string]any `json:"customFields"`
	Tags            []string       `json:"tags"`
	Source          *string        `json:"source,omitempty"`
	BatchID         *string        `json:"batchId,omitempty"`
	BatchNumber     *int           `json:"batchNumber,omitempty"`
	TenantID        *uuid.UUID     `json:"tenantId,omitempty"`
	CreatedBy       *uuid.UUID     `json:"createdBy,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Tuple derives the uniqueness tuple from the record's references.
func (m VehicleMetadata) Tuple() MetadataTuple {
	t := MetadataTuple{MakeID: m.MakeID, ModelID: m.ModelID}
	if m.VariantID != nil {
		t.VariantID = *m.VariantID
	}
	if m.BodyID != nil {
		t.BodyID = *m.BodyID
	}
	if m.VariantYearID != nil {
		t.VariantYearID = *m.VariantYearID
	}
	return t
}
