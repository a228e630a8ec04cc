package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarledger/solarledger/pkg/energy"
	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/metrics"
	"github.com/solarledger/solarledger/pkg/report"
	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/types"
	"golang.org/x/sync/errgroup"
)

// periods covered when a request has no start and end
var defaultPeriods = map[types.Granularity]int{
	types.GranularityDay:   30,
	types.GranularityMonth: 12,
	types.GranularityYear:  10,
}

var errPresetLookup = errors.New("failed to load preset")

type productionQuery struct {
	device      string
	point       string
	granularity types.Granularity
	start       string
	end         string
}

// parseProductionQuery resolves device, point, granularity and range from the
// query string, either directly or through a saved preset.
func (s *Server) parseProductionQuery(r *http.Request) (productionQuery, error) {
	q := r.URL.Query()
	var pq productionQuery

	if id := q.Get("preset"); id != "" {
		preset, err := s.storage.GetPreset(r.Context(), id)
		if errors.Is(err, storage.ErrPresetNotFound) {
			return pq, fmt.Errorf("unknown preset: %s", id)
		} else if err != nil {
			log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to get preset", slog.String("id", id), slog.Any("error", err))
			return pq, errPresetLookup
		}
		pq.device = preset.Device
		pq.point = preset.Point
		pq.granularity = preset.Granularity
		pq.start, pq.end = preset.Range(s.now())
	} else {
		g, err := types.ParseGranularity(q.Get("granularity"))
		if err != nil {
			return pq, err
		}
		pq.granularity = g
		pq.start, pq.end = q.Get("start"), q.Get("end")
		if (pq.start == "") != (pq.end == "") {
			return pq, errors.New("start and end must both be set or both be empty")
		}
		if pq.start == "" {
			pq.start, pq.end = types.Preset{Granularity: g, Periods: defaultPeriods[g]}.Range(s.now())
		}
	}

	if d := q.Get("device"); d != "" {
		pq.device = d
	}
	if pq.device == "" {
		pq.device = s.defaultDevice
	}
	if pq.device == "" {
		return pq, errors.New("device is required")
	}
	if p := q.Get("point"); p != "" {
		pq.point = p
	}
	if pq.point == "" {
		pq.point = s.productionPoint
	}

	start, err := pq.granularity.Parse(pq.start)
	if err != nil {
		return pq, fmt.Errorf("invalid start %q: expected %s", pq.start, pq.granularity.Layout())
	}
	end, err := pq.granularity.Parse(pq.end)
	if err != nil {
		return pq, fmt.Errorf("invalid end %q: expected %s", pq.end, pq.granularity.Layout())
	}
	if end.Before(start) {
		return pq, errors.New("start must be before end")
	}
	return pq, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPresetLookup) {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONError(w, err.Error(), http.StatusBadRequest)
}

// setCacheControl caches ranges that end before the current period for
// closedCacheTTL and everything else for a minute.
func (s *Server) setCacheControl(w http.ResponseWriter, pq productionQuery) {
	current := pq.granularity.Format(pq.granularity.Truncate(s.now().UTC()))
	if pq.end < current && s.closedCacheTTL > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(s.closedCacheTTL.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

// buildReport fetches history from one period before the window so the
// first record has a reading to subtract, then converts it.
func (s *Server) buildReport(ctx context.Context, pq productionQuery) (types.ProductionReport, error) {
	fetchStart := pq.start
	if prev, ok := pq.granularity.Previous(pq.start); ok {
		fetchStart = prev
	}

	rows, err := s.inverter.History(ctx, types.HistoryQuery{
		Device:      pq.device,
		Point:       pq.point,
		Granularity: pq.granularity,
		Start:       fetchStart,
		End:         pq.end,
	})
	if err != nil {
		return types.ProductionReport{}, err
	}

	res := energy.Convert(rows, pq.point, pq.granularity, pq.start)
	res.Records = trimAfter(res.Records, pq.end)
	res.Summary = energy.Summarize(res.Records)

	l := log.Ctx(ctx).With(slog.String("device", pq.device), slog.String("point", pq.point), slog.String("granularity", string(pq.granularity)))
	if rep := res.Report; rep.Skipped > 0 || rep.Coerced > 0 || rep.Duplicates > 0 {
		l.WarnContext(ctx, "upstream rows needed cleanup",
			slog.Int("rows", rep.Rows),
			slog.Int("skipped", rep.Skipped),
			slog.Int("coerced", rep.Coerced),
			slog.Int("duplicates", rep.Duplicates),
		)
	}
	for _, rec := range res.Records {
		if rec.Clamped {
			l.WarnContext(ctx, "cumulative counter decreased, production clamped",
				slog.String("timestamp", rec.Timestamp),
				slog.String("priorTimestamp", rec.PriorTimestamp),
				slog.Float64("cumulativeKwh", rec.CumulativeKwh),
			)
		}
	}
	metrics.ObserveConversion(string(pq.granularity), res.Summary.ClampedPeriods, res.Report.Coerced, res.Report.Skipped)

	return types.ProductionReport{
		Device:      pq.device,
		Point:       pq.point,
		Granularity: pq.granularity,
		WindowStart: pq.start,
		WindowEnd:   pq.end,
		Records:     res.Records,
		Summary:     res.Summary,
	}, nil
}

// trimAfter drops records past end, which upstream occasionally returns.
func trimAfter(records []types.PeriodRecord, end string) []types.PeriodRecord {
	for i, rec := range records {
		if rec.Timestamp > end {
			return records[:i]
		}
	}
	return records
}

func (s *Server) handleProduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pq, err := s.parseProductionQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	rep, err := s.buildReport(ctx, pq)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build production report", slog.String("device", pq.device), slog.Any("error", err))
		writeJSONError(w, "failed to get production history", http.StatusBadGateway)
		return
	}
	s.setCacheControl(w, pq)
	writeJSON(w, rep.Rounded())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format := r.URL.Query().Get("format")
	if format != report.FormatXLSX && format != report.FormatPDF {
		writeJSONError(w, fmt.Sprintf("unknown export format %q: expected xlsx or pdf", format), http.StatusBadRequest)
		return
	}
	pq, err := s.parseProductionQuery(r)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	rep, err := s.buildReport(ctx, pq)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build production report", slog.String("device", pq.device), slog.Any("error", err))
		writeJSONError(w, "failed to get production history", http.StatusBadGateway)
		return
	}

	b, err := report.Build(rep, format)
	metrics.IncExport(format, err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render export", slog.String("format", format), slog.Any("error", err))
		writeJSONError(w, "failed to render export", http.StatusInternalServerError)
		return
	}

	s.setCacheControl(w, pq)
	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(rep, format)))
	if _, err := w.Write(b); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	device, err := s.device(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now().UTC()
	pq := productionQuery{
		device:      device,
		point:       s.productionPoint,
		granularity: types.GranularityDay,
		start:       types.GranularityDay.Format(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)),
		end:         types.GranularityDay.Format(now),
	}

	var overview types.Overview
	eg, ctx := errgroup.WithContext(r.Context())
	eg.Go(func() error {
		devices, err := s.inverter.Realtime(ctx, []string{device}, s.points(r))
		if err != nil {
			return fmt.Errorf("failed to get realtime data: %w", err)
		}
		overview.Realtime = devices
		return nil
	})
	eg.Go(func() error {
		rep, err := s.buildReport(ctx, pq)
		if err != nil {
			return fmt.Errorf("failed to get production history: %w", err)
		}
		overview.Production = rep.Rounded()
		return nil
	})
	if err := eg.Wait(); err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to build overview", slog.String("device", device), slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, overview)
}
