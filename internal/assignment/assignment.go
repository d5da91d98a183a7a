package assignment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"courtbook/internal/docstore"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/reservation"
	"courtbook/internal/timeslot"

	"github.com/rs/zerolog"
)

// Soft preference weights. Specific court affinity outranks indoor/outdoor,
// which outranks a single tag match.
const (
	weightPreferredCourt = 3
	weightIndoorMatch    = 2
	weightTagMatch       = 1
)

// NoCourtError is returned when every candidate conflicted for the
// requested range; Conflicts maps court id to its blocking slot keys so the
// caller can suggest an alternate time.
type NoCourtError struct {
	Conflicts map[string][]string
}

func (e *NoCourtError) Error() string {
	courts := make([]string, 0, len(e.Conflicts))
	for id := range e.Conflicts {
		courts = append(courts, id)
	}
	sort.Strings(courts)
	return fmt.Sprintf("no court available: all candidates conflicted (%s)", strings.Join(courts, ", "))
}

// IsNoCourt reports whether err means every candidate was taken.
func IsNoCourt(err error) bool {
	var nce *NoCourtError
	return errors.As(err, &nce)
}

// AsNoCourt extracts the per-court conflict detail, if any.
func AsNoCourt(err error) (*NoCourtError, bool) {
	var nce *NoCourtError
	if errors.As(err, &nce) {
		return nce, true
	}
	return nil, false
}

// Engine scores candidate courts against user preferences and reserves the
// best one, falling back to the next candidate on conflict. The scoring
// snapshot can go stale between ranking and reserving, so a conflict is
// handled by moving on, never by assuming the snapshot was right.
type Engine struct {
	reserve *reservation.Engine
	rules   pricing.Rules
	gran    int
	logger  zerolog.Logger
}

func New(reserve *reservation.Engine, rules pricing.Rules, granularityMinutes int, logger *zerolog.Logger) *Engine {
	return &Engine{
		reserve: reserve,
		rules:   rules,
		gran:    granularityMinutes,
		logger:  logger.With().Str("component", "assignment").Logger(),
	}
}

// Request describes one booking attempt across a candidate court set.
type Request struct {
	Date            string
	StartTime       string
	DurationMinutes int
	RequesterID     string
	ReservationID   string
	Candidates      []models.Court
	Prefs           models.Preferences
}

// Result is the winning court with its computed price.
type Result struct {
	Court   models.Court
	Price   int64
	EndTime string
}

// CommitFunc persists the booking record in the same transaction as the
// slot claim for the court that actually won.
type CommitFunc func(tx *docstore.Tx, court models.Court, price int64, endTime string) error

// CheckAndAssignCourt filters, scores and orders the candidates, then tries
// to reserve them best-first. First successful reservation wins.
func (e *Engine) CheckAndAssignCourt(ctx context.Context, req Request, commit CommitFunc) (*Result, error) {
	endTime, err := timeslot.EndOfRange(req.StartTime, req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	ranked := Rank(req.Candidates, req.Prefs)
	if len(ranked) == 0 {
		return nil, &NoCourtError{Conflicts: map[string][]string{}}
	}

	conflicts := make(map[string][]string)
	for _, court := range ranked {
		price, err := pricing.Quote(court.Rates, e.rules, req.Date, req.StartTime, endTime, e.gran)
		if err != nil {
			return nil, err
		}

		var hook reservation.CommitHook
		if commit != nil {
			c, p := court, price
			hook = func(tx *docstore.Tx) error { return commit(tx, c, p, endTime) }
		}

		err = e.reserve.Reserve(ctx, reservation.ReserveParams{
			CourtID:       court.ID,
			Date:          req.Date,
			StartTime:     req.StartTime,
			EndTime:       endTime,
			RequesterID:   req.RequesterID,
			ReservationID: req.ReservationID,
		}, hook)
		if err == nil {
			return &Result{Court: court, Price: price, EndTime: endTime}, nil
		}

		if conflict, ok := reservation.AsConflict(err); ok {
			conflicts[court.ID] = conflict.Keys
			e.logger.Debug().
				Str("court_id", court.ID).
				Strs("slots", conflict.Keys).
				Msg("candidate conflicted, trying next")
			continue
		}

		return nil, err
	}

	return nil, &NoCourtError{Conflicts: conflicts}
}

// Rank filters out inactive courts and hard-constraint mismatches, then
// orders the rest by descending preference score, ties broken by lowest
// base rate and finally by court id so the order is reproducible.
func Rank(candidates []models.Court, prefs models.Preferences) []models.Court {
	filtered := make([]models.Court, 0, len(candidates))
	for _, c := range candidates {
		if !c.IsActive {
			continue
		}
		if prefs.RequiredType != "" && c.Type != prefs.RequiredType {
			continue
		}
		filtered = append(filtered, c)
	}

	scores := make(map[string]int, len(filtered))
	for _, c := range filtered {
		scores[c.ID] = Score(c, prefs)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		if a.Rates.Base != b.Rates.Base {
			return a.Rates.Base < b.Rates.Base
		}
		return a.ID < b.ID
	})

	return filtered
}

// Score sums soft preference weights for one court.
func Score(c models.Court, prefs models.Preferences) int {
	score := 0
	if prefs.PreferredCourtID != "" && c.ID == prefs.PreferredCourtID {
		score += weightPreferredCourt
	}
	if prefs.Indoor != nil && c.Indoor == *prefs.Indoor {
		score += weightIndoorMatch
	}
	for _, want := range prefs.Tags {
		for _, have := range c.Tags {
			if want == have {
				score += weightTagMatch
				break
			}
		}
	}
	return score
}
