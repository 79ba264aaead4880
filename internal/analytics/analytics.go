package analytics

import (
	"context"
	"sort"
	"time"

	"distrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	TrendDays          = 7
	ResolutionSample   = 10
	TopCreators        = 5
	DefaultRecentLimit = 50
)

type Store interface {
	storage.AuditStore
	storage.WarningStore
	storage.TicketStore
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	store Store
	clock Clock
	loc   *time.Location
}

func New(store Store) *Service {
	return &Service{store: store, clock: realClock{}, loc: time.Local}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

// WithLocation sets the zone whose midnights bound the daily buckets.
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
	PeriodAll Period = "all"
)

func ParsePeriod(value string) Period {
	switch Period(value) {
	case Period24h, Period7d, Period30d, PeriodAll:
		return Period(value)
	default:
		return Period30d
	}
}

// Since returns the lower bound of the period, nil for all time.
func (p Period) Since(now time.Time) *time.Time {
	var since time.Time
	switch p {
	case Period24h:
		since = now.Add(-24 * time.Hour)
	case Period7d:
		since = now.AddDate(0, 0, -7)
	case PeriodAll:
		return nil
	default:
		since = now.AddDate(0, 0, -30)
	}
	return &since
}

func (p Period) Label() string {
	switch p {
	case Period24h:
		return "Last 24 hours"
	case Period7d:
		return "Last 7 days"
	case PeriodAll:
		return "All time"
	default:
		return "Last 30 days"
	}
}

type Count struct {
	Key   string
	Count int64
}

type ModerationReport struct {
	Label          string
	Since          *time.Time
	TotalActions   int64
	ByAction       []Count
	ByModerator    []Count
	TotalWarnings  int64
	ActiveWarnings int64
	BySeverity     []Count
}

// Moderation summarises audit and warning activity for a guild. Empty
// guilds produce zero totals and empty breakdowns.
// A nil since covers all recorded history.
func (s *Service) Moderation(ctx context.Context, guildID string, since *time.Time) (ModerationReport, error) {
	report := ModerationReport{Label: PeriodAll.Label(), Since: since}
	var window storage.TimeRange
	if since != nil {
		window.Since = *since
		report.Label = "Since " + since.Format("2006-01-02 15:04")
	}

	auditQuery := storage.AuditQuery{GuildID: guildID, Created: window}
	warnQuery := storage.WarningQuery{GuildID: guildID, Created: window}
	active := true
	activeQuery := warnQuery
	activeQuery.Active = &active

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.TotalActions, err = s.store.CountAuditLogs(ctx, auditQuery)
		return err
	})
	g.Go(func() error {
		groups, err := s.store.GroupAuditLogs(ctx, auditQuery, storage.FieldAction, 0)
		report.ByAction = toCounts(groups)
		return err
	})
	g.Go(func() error {
		groups, err := s.store.GroupAuditLogs(ctx, auditQuery, storage.FieldModerator, 0)
		report.ByModerator = toCounts(groups)
		return err
	})
	g.Go(func() (err error) {
		report.TotalWarnings, err = s.store.CountWarnings(ctx, warnQuery)
		return err
	})
	g.Go(func() (err error) {
		report.ActiveWarnings, err = s.store.CountWarnings(ctx, activeQuery)
		return err
	})
	g.Go(func() error {
		groups, err := s.store.GroupWarnings(ctx, warnQuery, storage.FieldSeverity, 0)
		report.BySeverity = toCounts(groups)
		return err
	})
	if err := g.Wait(); err != nil {
		return ModerationReport{}, err
	}
	return report, nil
}

type DayBucket struct {
	Day   time.Time
	Count int64
}

type TicketReport struct {
	Total    int64
	Open     int64
	Closed   int64
	Archived int64
	// OpenRate is Open/Total, zero for a guild without tickets.
	OpenRate float64

	Last24h int64
	Last7d  int64
	Last30d int64

	// AverageResolution is only meaningful when ResolutionSamples > 0.
	AverageResolution time.Duration
	ResolutionSamples int

	TopCreators  []Count
	Daily        []DayBucket
	DailyAverage float64
}

func (s *Service) Tickets(ctx context.Context, guildID string) (TicketReport, error) {
	now := s.clock.Now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	report := TicketReport{Daily: make([]DayBucket, TrendDays)}

	count := func(dst *int64, q storage.TicketQuery) func() error {
		return func() (err error) {
			q.GuildID = guildID
			*dst, err = s.store.CountTickets(ctx, q)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	ctx = gctx
	g.Go(count(&report.Total, storage.TicketQuery{}))
	g.Go(count(&report.Open, storage.TicketQuery{Statuses: []storage.TicketStatus{storage.TicketOpen}}))
	g.Go(count(&report.Closed, storage.TicketQuery{Statuses: []storage.TicketStatus{storage.TicketClosed}}))
	g.Go(count(&report.Archived, storage.TicketQuery{Statuses: []storage.TicketStatus{storage.TicketArchived}}))
	g.Go(count(&report.Last24h, storage.TicketQuery{Created: storage.TimeRange{Since: now.Add(-24 * time.Hour)}}))
	g.Go(count(&report.Last7d, storage.TicketQuery{Created: storage.TimeRange{Since: now.AddDate(0, 0, -7)}}))
	g.Go(count(&report.Last30d, storage.TicketQuery{Created: storage.TimeRange{Since: now.AddDate(0, 0, -30)}}))
	for i := 0; i < TrendDays; i++ {
		start := midnight.AddDate(0, 0, i-(TrendDays-1))
		report.Daily[i].Day = start
		g.Go(count(&report.Daily[i].Count, storage.TicketQuery{Created: storage.TimeRange{Since: start, Until: start.AddDate(0, 0, 1)}}))
	}
	g.Go(func() error {
		closed, err := s.store.FindTickets(ctx, storage.TicketQuery{GuildID: guildID, Closed: true, Limit: ResolutionSample})
		if err != nil {
			return err
		}
		report.AverageResolution, report.ResolutionSamples = averageResolution(closed)
		return nil
	})
	g.Go(func() error {
		groups, err := s.store.GroupTickets(ctx, storage.TicketQuery{GuildID: guildID}, storage.FieldUser, TopCreators)
		report.TopCreators = toCounts(groups)
		return err
	})
	if err := g.Wait(); err != nil {
		return TicketReport{}, err
	}

	if report.Total > 0 {
		report.OpenRate = float64(report.Open) / float64(report.Total)
	}
	var trendTotal int64
	for _, bucket := range report.Daily {
		trendTotal += bucket.Count
	}
	report.DailyAverage = float64(trendTotal) / float64(TrendDays)
	return report, nil
}

func averageResolution(tickets []storage.Ticket) (time.Duration, int) {
	var total time.Duration
	samples := 0
	for _, ticket := range tickets {
		if d, ok := ticket.ResolutionTime(); ok && d >= 0 {
			total += d
			samples++
		}
	}
	if samples == 0 {
		return 0, 0
	}
	return total / time.Duration(samples), samples
}

func (s *Service) RecentLogs(ctx context.Context, q storage.AuditQuery) ([]storage.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultRecentLimit
	}
	return s.store.FindAuditLogs(ctx, q)
}

func (s *Service) UserLogs(ctx context.Context, guildID, userID string, limit int) ([]storage.AuditLog, error) {
	return s.RecentLogs(ctx, storage.AuditQuery{GuildID: guildID, TargetID: userID, Limit: limit})
}

func toCounts(groups []storage.GroupCount) []Count {
	out := make([]Count, 0, len(groups))
	for _, g := range groups {
		out = append(out, Count{Key: g.Key, Count: g.Count})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
