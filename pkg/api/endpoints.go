package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hazyhaar/trialmap/pkg/dict"
	"github.com/hazyhaar/trialmap/pkg/kit"
	"github.com/hazyhaar/trialmap/pkg/ledger"
	"github.com/hazyhaar/trialmap/pkg/match"
	"github.com/hazyhaar/trialmap/pkg/trial"
)

// MaxResolve caps the number of interventions in one resolve request.
const MaxResolve = 100

var (
	errNoBundle     = errors.New("no reference bundle loaded")
	errNoLedger     = errors.New("run ledger not configured")
	errDrugNotFound = errors.New("drug not found")
	errBadRequest   = errors.New("bad request")
)

// Shared request/response types used by both HTTP and MCP transports.

type resolveReq struct {
	Interventions []trial.InterventionRecord `json:"interventions"`
}

type resolveResponse struct {
	Bundle       string                     `json:"bundle"`
	Mappings     []match.Mapping            `json:"mappings"`
	Unmapped     []trial.InterventionRecord `json:"unmapped"`
	Stages       []match.StageReport        `json:"stages"`
	DrugTrials   int                        `json:"drug_trials"`
	MappedTrials int                        `json:"mapped_trials"`
	Coverage     float64                    `json:"coverage"`
}

type lookupReq struct {
	Name string
}

type listRunsReq struct {
	Limit int
}

type runsResponse struct {
	Runs []ledger.Run `json:"runs"`
}

type getRunReq struct {
	ID string
}

type runResponse struct {
	Run    ledger.Run          `json:"run"`
	Stages []match.StageReport `json:"stages"`
}

// resolver keeps one pipeline per snapshot. A reload swaps the snapshot in
// the registry; the next request rebuilds the pipeline against it.
type resolver struct {
	reg *dict.Registry
	cfg match.Config

	mu   sync.Mutex
	snap *dict.Snapshot
	pipe *match.Pipeline
}

func newResolver(reg *dict.Registry, cfg match.Config) *resolver {
	return &resolver{reg: reg, cfg: cfg}
}

func (r *resolver) pipeline() (*match.Pipeline, *dict.Snapshot, error) {
	snap := r.reg.Current()
	if snap == nil {
		return nil, nil, errNoBundle
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap != snap {
		p, err := match.NewPipeline(snap, r.cfg)
		if err != nil {
			return nil, nil, err
		}
		r.snap, r.pipe = snap, p
	}
	return r.pipe, r.snap, nil
}

// normalizeRecords fills the fields ad-hoc callers usually omit: a missing
// trial id becomes q<index>, a missing type becomes Drug, and text is
// trimmed and lowercased like imported intervention tables.
func normalizeRecords(in []trial.InterventionRecord) ([]trial.InterventionRecord, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: interventions array is empty", errBadRequest)
	}
	if len(in) > MaxResolve {
		return nil, fmt.Errorf("%w: too many interventions (max %d, got %d)", errBadRequest, MaxResolve, len(in))
	}
	out := make([]trial.InterventionRecord, len(in))
	for i, rec := range in {
		rec.Text = strings.ToLower(strings.TrimSpace(rec.Text))
		rec.TrialID = strings.TrimSpace(rec.TrialID)
		if rec.TrialID == "" {
			rec.TrialID = fmt.Sprintf("q%d", i)
		}
		if rec.Type == "" {
			rec.Type = trial.TypeDrug
		}
		out[i] = rec
	}
	return out, nil
}

func resolveEndpoint(res *resolver) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*resolveReq)
		records, err := normalizeRecords(req.Interventions)
		if err != nil {
			return nil, err
		}
		p, snap, err := res.pipeline()
		if err != nil {
			return nil, err
		}
		out, err := p.Run(ctx, records)
		if err != nil {
			return nil, err
		}
		resp := resolveResponse{
			Bundle:       snap.Manifest.ID + "@" + snap.Manifest.Version,
			Mappings:     out.Mappings,
			Unmapped:     out.Unmapped,
			Stages:       out.Stages,
			DrugTrials:   out.DrugTrials,
			MappedTrials: out.MappedTrials,
			Coverage:     out.Coverage,
		}
		if resp.Mappings == nil {
			resp.Mappings = []match.Mapping{}
		}
		if resp.Unmapped == nil {
			resp.Unmapped = []trial.InterventionRecord{}
		}
		return resp, nil
	}
}

func lookupEndpoint(reg *dict.Registry) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*lookupReq)
		snap := reg.Current()
		if snap == nil {
			return nil, errNoBundle
		}
		info, ok := snap.Lookup(req.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errDrugNotFound, req.Name)
		}
		return info, nil
	}
}

func listRunsEndpoint(l *ledger.Ledger) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if l == nil {
			return nil, errNoLedger
		}
		req := request.(*listRunsReq)
		runs, err := l.ListRuns(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []ledger.Run{}
		}
		return runsResponse{Runs: runs}, nil
	}
}

func getRunEndpoint(l *ledger.Ledger) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if l == nil {
			return nil, errNoLedger
		}
		req := request.(*getRunReq)
		run, stages, err := l.GetRun(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return runResponse{Run: run, Stages: stages}, nil
	}
}
