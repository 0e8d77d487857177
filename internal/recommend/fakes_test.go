package recommend

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
	"github.com/onnwee/jobrec/internal/ranking"
)

var errUpstream = errors.New("upstream down")

type fakeCatalog struct {
	jobs []model.Job
	err  error // yielded after the jobs
}

func (c *fakeCatalog) Jobs(ctx context.Context) iter.Seq2[model.Job, error] {
	return func(yield func(model.Job, error) bool) {
		for _, j := range c.jobs {
			if !yield(j, nil) {
				return
			}
		}
		if c.err != nil {
			yield(model.Job{}, c.err)
		}
	}
}

type fakeUsers struct {
	calls atomic.Int32
	err   error
}

func (u *fakeUsers) Profile(ctx context.Context, userID int64) (model.UserProfile, error) {
	u.calls.Add(1)
	if u.err != nil {
		return model.UserProfile{}, u.err
	}
	return model.UserProfile{ID: userID, Address: "1 Main St", City: "Springfield", ZipCode: "12345", Country: "US"}, nil
}

type fakeGeocoder struct {
	calls  atomic.Int32
	coords geo.Coordinates
	err    error
}

func (g *fakeGeocoder) Coordinates(ctx context.Context, p model.UserProfile) (geo.Coordinates, error) {
	g.calls.Add(1)
	return g.coords, g.err
}

type fakePreferences struct {
	calls atomic.Int32
	prefs model.Preferences
	err   error
}

func (p *fakePreferences) Preferences(ctx context.Context, userID int64) (model.Preferences, error) {
	p.calls.Add(1)
	return p.prefs, p.err
}

type fakeIDs struct {
	calls atomic.Int32
	ids   model.IDSet
	err   error
}

func (f *fakeIDs) FavoriteWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

func (f *fakeIDs) BlockedWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

// corruption makes a fake return stats for the wrong entity. Both maps are
// keyed by the requested subject and hold the id to corrupt.
type corruption struct {
	wrongTag map[model.SubjectType]int64
	wrongID  map[model.SubjectType]int64
}

func (c corruption) apply(subject model.SubjectType, id int64) (model.SubjectType, int64) {
	tag, gotID := subject, id
	if bad, ok := c.wrongTag[subject]; ok && bad == id {
		tag = model.SubjectWorker
		if subject == model.SubjectWorker {
			tag = model.SubjectJob
		}
	}
	if bad, ok := c.wrongID[subject]; ok && bad == id {
		gotID = id + 1000
	}
	return tag, gotID
}

type fakeRatings struct {
	corruption
	err   error
	delay time.Duration
}

func (r *fakeRatings) RatingStats(ctx context.Context, subject model.SubjectType, id int64) (model.RatingStats, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return model.RatingStats{}, ctx.Err()
		}
	}
	if r.err != nil {
		return model.RatingStats{}, r.err
	}
	avg := 4.0
	tag, gotID := r.apply(subject, id)
	return model.RatingStats{Subject: tag, SubjectID: gotID, Average: &avg, Count: 3}, nil
}

type fakeReports struct {
	corruption
	err error
}

func (r *fakeReports) ReportStats(ctx context.Context, subject model.SubjectType, id int64) (model.ReportStats, error) {
	if r.err != nil {
		return model.ReportStats{}, r.err
	}
	tag, gotID := r.apply(subject, id)
	return model.ReportStats{Subject: tag, SubjectID: gotID}, nil
}

// fixedScorer scores jobs from a table and records which jobs it saw.
type fixedScorer struct {
	mu     sync.Mutex
	scores map[int64]float64
	seen   []int64
	inputs []ranking.Input
}

func (s *fixedScorer) Calculate(in ranking.Input) model.JobScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, in.Job.ID)
	s.inputs = append(s.inputs, in)
	return model.JobScore{JobID: in.Job.ID, WorkerID: in.WorkerID, Score: s.scores[in.Job.ID]}
}

func (s *fixedScorer) saw(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.seen {
		if id == jobID {
			return true
		}
	}
	return false
}

type fixture struct {
	catalog   *fakeCatalog
	users     *fakeUsers
	geocoder  *fakeGeocoder
	prefs     *fakePreferences
	favorites *fakeIDs
	blocked   *fakeIDs
	ratings   *fakeRatings
	reports   *fakeReports
	scorer    *fixedScorer
	metrics   *Metrics
}

func newFixture(jobs ...model.Job) *fixture {
	radius := 100.0
	exp := 1
	return &fixture{
		catalog:  &fakeCatalog{jobs: jobs},
		users:    &fakeUsers{},
		geocoder: &fakeGeocoder{coords: geo.Coordinates{Lat: 40.7128, Lng: -74.0060}},
		prefs: &fakePreferences{prefs: model.Preferences{
			UserID:              7,
			PreferredRadiusKm:   &radius,
			PreferredExperience: &exp,
			WantedCategories:    []string{"plumbing"},
		}},
		favorites: &fakeIDs{ids: model.NewIDSet()},
		blocked:   &fakeIDs{ids: model.NewIDSet()},
		ratings:   &fakeRatings{},
		reports:   &fakeReports{},
		scorer:    &fixedScorer{scores: map[int64]float64{}},
		metrics:   NewMetrics(),
	}
}

func (f *fixture) service(cfg Config) *Service {
	return NewService(Sources{
		Catalog:     f.catalog,
		Users:       f.users,
		Geocoder:    f.geocoder,
		Preferences: f.prefs,
		Favorites:   f.favorites,
		Blocklist:   f.blocked,
		Ratings:     f.ratings,
		Reports:     f.reports,
	}, f.scorer, cfg, f.metrics, nil)
}

func job(id, workerID int64, status string) model.Job {
	return model.Job{ID: id, WorkerID: workerID, Title: "job", Category: "plumbing", Status: status}
}
