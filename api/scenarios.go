/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Seeds the store with small, recognisable pay situations so the API and
	a frontend can be explored without uploading files. Each scenario
	creates one worker, its tiers and today's facts.

AVAILABLE SCENARIOS:
	threshold-hourly:      Goal and demo minimum met, $25/h + $2/demo
	demo-minimum-miss:     Sales goal met but too few demos, pays 0
	commission-vs-hourly:  Both tiers qualify, the higher base pay wins

HOW SCENARIOS WORK:
 1. Save the worker (upsert)
 2. Upsert its tiers (effective today)
 3. Upsert today's sales/hours and demo facts
 4. Drop memoized results for the worker

Loading is idempotent: every write is an upsert, so loading twice leaves
the same state.

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "threshold-hourly"}

SEE ALSO:
  - handlers.go: Fact and tier endpoints the scenarios go through
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/tierpay/payroll"
	"github.com/warp/tierpay/tiers"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioTier struct {
	mode   payroll.PayMode
	fields tiers.Fields
}

type scenario struct {
	ScenarioDTO
	worker payroll.Worker
	tiers  []scenarioTier
	sales  int64
	hours  decimal.Decimal
	demos  int
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "threshold-hourly",
			Name:        "Threshold Hourly",
			Description: "Sales goal 500 and 3 demos met: 8h at $25 plus 5 demos at $2 pays 210",
			WorkerID:    "demo-ana",
		},
		worker: payroll.Worker{ID: "demo-ana", Name: "Ana Demo", Email: "ana.demo@example.com", Username: "ana.demo"},
		tiers: []scenarioTier{{
			mode: payroll.PayModeHourly,
			fields: tiers.Fields{
				SalesGoal:        500,
				DailyDemoMinimum: 3,
				HourlyRate:       decimal.NewFromInt(25),
				DemoBonus:        decimal.NewFromInt(2),
			},
		}},
		sales: 1000,
		hours: decimal.NewFromInt(8),
		demos: 5,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "demo-minimum-miss",
			Name:        "Demo Minimum Miss",
			Description: "Sales goal met but only 2 of 3 demos: no tier applies and pay is 0",
			WorkerID:    "demo-ben",
		},
		worker: payroll.Worker{ID: "demo-ben", Name: "Ben Demo", Email: "ben.demo@example.com", Username: "ben.demo"},
		tiers: []scenarioTier{{
			mode: payroll.PayModeHourly,
			fields: tiers.Fields{
				SalesGoal:        500,
				DailyDemoMinimum: 3,
				HourlyRate:       decimal.NewFromInt(25),
				DemoBonus:        decimal.NewFromInt(2),
			},
		}},
		sales: 1000,
		hours: decimal.NewFromInt(8),
		demos: 2,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "commission-vs-hourly",
			Name:        "Commission vs Hourly",
			Description: "8h at $20 (160) against 15% of 1200 (180): the commission tier is selected",
			WorkerID:    "demo-cara",
		},
		worker: payroll.Worker{ID: "demo-cara", Name: "Cara Demo", Email: "cara.demo@example.com", Username: "cara.demo"},
		tiers: []scenarioTier{
			{
				mode:   payroll.PayModeHourly,
				fields: tiers.Fields{HourlyRate: decimal.NewFromInt(20)},
			},
			{
				mode: payroll.PayModeCommission,
				fields: tiers.Fields{
					SalesGoal:             1000,
					CommissionRatePercent: decimal.NewFromInt(15),
				},
			},
		},
		sales: 1200,
		hours: decimal.NewFromInt(8),
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario seeds a predefined scenario with facts dated today.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.fail(w, r, "Unknown scenario", payroll.Invalid("scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}

	if err := h.loadScenario(r.Context(), s); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	h.Log.WithFields(logrus.Fields{"scenario": s.ID, "worker_id": s.worker.ID}).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Scenario loaded successfully",
		"scenario":  s.ScenarioDTO,
		"worker_id": s.worker.ID,
		"date":      payroll.DateOf(h.now()),
	})
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	worker := s.worker
	existing, err := h.Store.GetWorker(ctx, worker.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		worker.CreatedAt = existing.CreatedAt
	} else {
		worker.CreatedAt = h.now().UTC()
	}
	if err := h.Store.SaveWorker(ctx, worker); err != nil {
		return err
	}

	for _, t := range s.tiers {
		if _, err := h.Tiers.Upsert(ctx, worker.ID, t.mode, t.fields); err != nil {
			return err
		}
	}

	today := payroll.DateOf(h.now())
	if _, err := h.Facts.UpsertSalesHours(ctx, worker.ID, today, s.sales, s.hours, payroll.SourceManual, nil); err != nil {
		return err
	}
	if _, err := h.Facts.UpsertDemo(ctx, worker.ID, today, s.demos, payroll.SourceManual); err != nil {
		return err
	}

	h.Calc.Invalidate(ctx, worker.ID)
	return nil
}
