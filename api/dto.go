/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Workers:      WorkerDTO, CreateWorkerRequest
  Facts:        DemoDTO, UpsertDemoRequest, SalesHoursDTO, UpsertSalesHoursRequest
  Tiers:        TierDTO, UpsertTierRequest, UpdateTierRequest
  Imports:      ImportDTO, ImportResultDTO, JSONImportRequest
  Pay:          DailyPayResponse, DailyMetricsResponse
  Pay periods:  PayPeriodDTO, CreatePayPeriodRequest, RecomputeDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request shapes are checked with validator struct tags. Domain rules
  (non-negative counts, rate by pay mode) are enforced again by the
  services, which are the source of truth.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tierpay/calculator"
	"github.com/warp/tierpay/payroll"
)

// =============================================================================
// WORKERS
// =============================================================================

type WorkerDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Username   string    `json:"username,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateWorkerRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Username   string `json:"username" validate:"omitempty,max=100"`
	LocationID string `json:"location_id"`
}

func toWorkerDTO(w payroll.Worker) WorkerDTO {
	return WorkerDTO{
		ID:         string(w.ID),
		Name:       w.Name,
		Email:      w.Email,
		Username:   w.Username,
		LocationID: w.LocationID,
		CreatedAt:  w.CreatedAt,
	}
}

// =============================================================================
// FACTS
// =============================================================================

type DemoDTO struct {
	WorkerID  string       `json:"worker_id"`
	Date      payroll.Date `json:"date"`
	DemoCount int          `json:"demo_count"`
	Source    string       `json:"source"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type UpsertDemoRequest struct {
	Date      string `json:"date" validate:"required"`
	DemoCount *int   `json:"demo_count" validate:"required,gte=0"`
}

type SalesHoursDTO struct {
	WorkerID  string          `json:"worker_id"`
	Date      payroll.Date    `json:"date"`
	Sales     int64           `json:"sales"`
	Hours     decimal.Decimal `json:"hours"`
	Source    string          `json:"source"`
	ImportRef *string         `json:"import_ref,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type UpsertSalesHoursRequest struct {
	Date  string           `json:"date" validate:"required"`
	Sales *int64           `json:"sales" validate:"required,gte=0"`
	Hours *decimal.Decimal `json:"hours" validate:"required"`
}

func toDemoDTO(f payroll.DemoFact) DemoDTO {
	return DemoDTO{
		WorkerID:  string(f.WorkerID),
		Date:      f.Date,
		DemoCount: f.DemoCount,
		Source:    f.Source,
		UpdatedAt: f.UpdatedAt,
	}
}

func toSalesHoursDTO(f payroll.SalesHoursFact) SalesHoursDTO {
	dto := SalesHoursDTO{
		WorkerID:  string(f.WorkerID),
		Date:      f.Date,
		Sales:     f.Sales,
		Hours:     f.Hours,
		Source:    f.Source,
		UpdatedAt: f.UpdatedAt,
	}
	if f.ImportRef != nil {
		ref := string(*f.ImportRef)
		dto.ImportRef = &ref
	}
	return dto
}

// =============================================================================
// TIERS
// =============================================================================

type TierDTO struct {
	ID                    string          `json:"id"`
	WorkerID              string          `json:"worker_id"`
	SalesGoal             int64           `json:"sales_goal_in_period"`
	DailyDemoMinimum      int             `json:"daily_demo_minimum"`
	PayMode               payroll.PayMode `json:"pay_mode"`
	HourlyRate            decimal.Decimal `json:"hourly_rate"`
	CommissionRatePercent decimal.Decimal `json:"commission_rate_percent"`
	DemoBonus             decimal.Decimal `json:"demo_bonus"`
	EffectiveFrom         payroll.Date    `json:"effective_from"`
	Active                bool            `json:"active"`
	OrderIndex            int             `json:"order_index"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type UpsertTierRequest struct {
	PayMode               string          `json:"pay_mode" validate:"required,oneof=hourly commission"`
	SalesGoal             int64           `json:"sales_goal_in_period" validate:"gte=0"`
	DailyDemoMinimum      int             `json:"daily_demo_minimum" validate:"gte=0"`
	HourlyRate            decimal.Decimal `json:"hourly_rate"`
	CommissionRatePercent decimal.Decimal `json:"commission_rate_percent"`
	DemoBonus             decimal.Decimal `json:"demo_bonus"`
	EffectiveFrom         string          `json:"effective_from"`
	OrderIndex            *int            `json:"order_index"`
}

type UpdateTierRequest struct {
	PayMode               *string          `json:"pay_mode" validate:"omitempty,oneof=hourly commission"`
	SalesGoal             *int64           `json:"sales_goal_in_period" validate:"omitempty,gte=0"`
	DailyDemoMinimum      *int             `json:"daily_demo_minimum" validate:"omitempty,gte=0"`
	HourlyRate            *decimal.Decimal `json:"hourly_rate"`
	CommissionRatePercent *decimal.Decimal `json:"commission_rate_percent"`
	DemoBonus             *decimal.Decimal `json:"demo_bonus"`
	EffectiveFrom         *string          `json:"effective_from"`
	Active                *bool            `json:"active"`
	OrderIndex            *int             `json:"order_index"`
}

func toTierDTO(t payroll.TierRule) TierDTO {
	return TierDTO{
		ID:                    string(t.ID),
		WorkerID:              string(t.WorkerID),
		SalesGoal:             t.SalesGoal,
		DailyDemoMinimum:      t.DailyDemoMinimum,
		PayMode:               t.PayMode,
		HourlyRate:            t.HourlyRate,
		CommissionRatePercent: t.CommissionRatePercent,
		DemoBonus:             t.DemoBonus,
		EffectiveFrom:         t.EffectiveFrom,
		Active:                t.Active,
		OrderIndex:            t.OrderIndex,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

// =============================================================================
// IMPORTS
// =============================================================================

type JSONImportRequest struct {
	Filename string           `json:"filename"`
	Rows     []map[string]any `json:"rows" validate:"required"`
}

type ImportDTO struct {
	ID             string              `json:"id"`
	Filename       string              `json:"filename"`
	ContentHash    string              `json:"content_hash"`
	UploadedAt     time.Time           `json:"uploaded_at"`
	Status         string              `json:"status"`
	Rows           int                 `json:"rows"`
	SalesHoursRows *int                `json:"sales_hours_rows,omitempty"`
	ParsedRows     []map[string]string `json:"parsed_rows,omitempty"`
}

// ImportResultDTO is the answer to an upload. Status is "created" or
// "duplicate"; ImportStatus is the ledger row's parse status.
type ImportResultDTO struct {
	ImportID     string   `json:"import_id"`
	Status       string   `json:"status"`
	ImportStatus string   `json:"import_status"`
	Filename     string   `json:"filename"`
	RowsUpserted int      `json:"rows_upserted"`
	RowsSkipped  int      `json:"rows_skipped"`
	Workers      []string `json:"workers"`
}

func toImportDTO(imp payroll.RawImport) ImportDTO {
	return ImportDTO{
		ID:          string(imp.ID),
		Filename:    imp.Filename,
		ContentHash: imp.ContentHash,
		UploadedAt:  imp.UploadedAt,
		Status:      string(imp.Status),
		Rows:        len(imp.ParsedRows),
		ParsedRows:  imp.ParsedRows,
	}
}

// =============================================================================
// PAY
// =============================================================================

type DailyPayResponse struct {
	calculator.DailyPay
	Eligible bool          `json:"eligible"`
	Period   *PayPeriodDTO `json:"period,omitempty"`
}

type DailyMetricsResponse struct {
	WorkerID string             `json:"worker_id"`
	Period   PayPeriodDTO       `json:"period"`
	Days     []DailyPayResponse `json:"days"`
	TotalPay decimal.Decimal    `json:"total_pay"`
}

func toDailyPayResponse(d calculator.DailyPay) DailyPayResponse {
	return DailyPayResponse{DailyPay: d, Eligible: d.Eligible()}
}

// =============================================================================
// PAY PERIODS
// =============================================================================

type PayPeriodDTO struct {
	ID        string       `json:"id,omitempty"`
	Start     payroll.Date `json:"start"`
	End       payroll.Date `json:"end"`
	Timezone  string       `json:"timezone"`
	Transient bool         `json:"transient,omitempty"`
}

type CreatePayPeriodRequest struct {
	Start    string `json:"start" validate:"required"`
	End      string `json:"end" validate:"required"`
	Timezone string `json:"timezone"`
}

type RecomputeDTO struct {
	PeriodID string          `json:"period_id"`
	WorkerID string          `json:"worker_id"`
	Days     int             `json:"days"`
	TotalPay decimal.Decimal `json:"total_pay"`
}

func toPayPeriodDTO(p payroll.PayPeriod) PayPeriodDTO {
	return PayPeriodDTO{
		ID:        string(p.ID),
		Start:     p.Start,
		End:       p.End,
		Timezone:  p.Timezone,
		Transient: p.Transient(),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	WorkerID    string `json:"worker_id"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
