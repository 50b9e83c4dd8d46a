package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// flakyStore fails reads or writes of chosen collections.
type flakyStore struct {
	repository.DocumentStore
	mu         sync.Mutex
	failQuery  map[string]bool
	failUpdate map[string]bool
	failCreate map[string]bool
	writeCalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		DocumentStore: repository.NewMemoryStore(),
		failQuery:     map[string]bool{},
		failUpdate:    map[string]bool{},
		failCreate:    map[string]bool{},
	}
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyStore) Query(ctx context.Context, c string, q repository.Query) ([]repository.Document, error) {
	f.mu.Lock()
	fail := f.failQuery[c]
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.DocumentStore.Query(ctx, c, q)
}

func (f *flakyStore) Create(ctx context.Context, c string, d repository.Document) (string, error) {
	f.mu.Lock()
	fail := f.failCreate[c]
	f.writeCalls++
	f.mu.Unlock()
	if fail {
		return "", errStoreDown
	}
	return f.DocumentStore.Create(ctx, c, d)
}

func (f *flakyStore) Update(ctx context.Context, c, id string, d repository.Document, merge bool) error {
	f.mu.Lock()
	fail := f.failUpdate[c]
	f.writeCalls++
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.DocumentStore.Update(ctx, c, id, d, merge)
}

func (f *flakyStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

type fixture struct {
	store  *flakyStore
	engine *service.Engine
	users  *repository.Users
	tasks  *repository.Tasks
	now    time.Time
}

func newFixture() *fixture {
	store := newFlakyStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return &fixture{
		store:  store,
		engine: service.NewEngine(store, service.WithClock(clock)),
		users:  repository.NewUsers(store),
		tasks:  repository.NewTasks(store),
		now:    now,
	}
}

func (f *fixture) user(name string) string {
	id, err := f.users.Create(context.Background(), model.User{Name: name, CommitmentScore: model.DefaultCommitmentScore, CreatedAt: f.now})
	So(err, ShouldBeNil)
	return id
}

// task stores a task for userID; completed tasks finish one hour before or
// after their deadline.
func (f *fixture) task(userID string, completed, onTime bool) {
	deadline := f.now.Add(24 * time.Hour)
	t := model.Task{ProjectID: "p1", Title: "t", Status: model.StatusTodo, Priority: model.PriorityMedium, AssigneeID: userID, Deadline: &deadline, CreatedAt: f.now}
	if completed {
		at := deadline.Add(time.Hour)
		if onTime {
			at = deadline.Add(-time.Hour)
		}
		t.Status = model.StatusCompleted
		t.CompletedAt = &at
	}
	_, err := f.tasks.Create(context.Background(), t)
	So(err, ShouldBeNil)
}

func TestEngineComputeScore(t *testing.T) {
	ctx := context.Background()

	Convey("Given tasks assigned to an id with no user record", t, func() {
		f := newFixture()
		f.task("ghost", true, true)
		before := f.store.writes()

		Convey("When the score is computed", func() {
			res, err := f.engine.ComputeScore(ctx, "ghost")

			Convey("Then it is derived but nothing is written", func() {
				So(err, ShouldBeNil)
				So(res.UsedFallback, ShouldBeFalse)
				So(res.Score, ShouldEqual, 95)
				So(errors.Is(res.Err, repository.ErrNotFound), ShouldBeTrue)

				history, err := f.engine.GetHistory(ctx, "ghost", 10)
				So(err, ShouldBeNil)
				So(history, ShouldBeEmpty)
				So(f.store.writes(), ShouldEqual, before+1)
			})
		})
	})

	Convey("Given a user with no history", t, func() {
		f := newFixture()
		uid := f.user("Ada")

		Convey("When the score is computed", func() {
			res, err := f.engine.ComputeScore(ctx, uid)
			So(err, ShouldBeNil)

			Convey("Then the defaults apply", func() {
				So(res.UsedFallback, ShouldBeFalse)
				So(res.Breakdown, ShouldResemble, model.Breakdown{OnTimeRate: 100, CompletionRate: 0, PeerReviewScore: 75})
				So(res.Score, ShouldEqual, 65)
			})
		})
	})

	Convey("Given 3 of 5 tasks completed, 2 on time, and reviews of 80, 100 and 90", t, func() {
		f := newFixture()
		uid := f.user("Ada")
		f.task(uid, true, true)
		f.task(uid, true, true)
		f.task(uid, true, false)
		f.task(uid, false, false)
		f.task(uid, false, false)

		for i, score := range []int{80, 100, 90} {
			reviewer := f.user(fmt.Sprintf("r%d", i))
			_, err := f.engine.SubmitReview(ctx, service.ReviewInput{
				ReviewerID: reviewer, ReviewedUserID: uid, ProjectID: "p1", Score: score,
			})
			So(err, ShouldBeNil)
		}

		Convey("When the score is computed", func() {
			res, err := f.engine.ComputeScore(ctx, uid)
			So(err, ShouldBeNil)

			Convey("Then 69.5 rounds half up to 70", func() {
				So(res.Breakdown, ShouldResemble, model.Breakdown{OnTimeRate: 67, CompletionRate: 60, PeerReviewScore: 90})
				So(res.Score, ShouldEqual, 70)
			})

			Convey("And the score is recorded in three places", func() {
				u, err := f.users.Get(ctx, uid)
				So(err, ShouldBeNil)
				So(u.CommitmentScore, ShouldEqual, 70)
				// one point per review submission plus this computation
				So(u.ScoreHistory, ShouldHaveLength, 4)
				So(u.ScoreHistory[3].Score, ShouldEqual, 70)

				hist, err := f.engine.GetHistory(ctx, uid, 0)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 4)
				So(hist[3].Score, ShouldEqual, 70)
				So(hist[0].Timestamp.Before(hist[3].Timestamp), ShouldBeTrue)
			})

			Convey("And recomputing without changes gives the same score", func() {
				again, err := f.engine.ComputeScore(ctx, uid)
				So(err, ShouldBeNil)
				So(again.Score, ShouldEqual, res.Score)
				So(again.Breakdown, ShouldResemble, res.Breakdown)
			})
		})

		Convey("When only deriving", func() {
			before := f.store.writes()
			res, err := f.engine.DeriveScore(ctx, uid)
			So(err, ShouldBeNil)
			So(res.Score, ShouldEqual, 70)
			So(f.store.writes(), ShouldEqual, before)
		})
	})

	Convey("Given a store whose reads fail", t, func() {
		f := newFixture()
		uid := f.user("Ada")
		f.store.failQuery[repository.CollectionTasks] = true
		before := f.store.writes()

		Convey("When the score is computed", func() {
			res, err := f.engine.ComputeScore(ctx, uid)

			Convey("Then the fallback is returned and nothing is written", func() {
				So(err, ShouldBeNil)
				So(res.UsedFallback, ShouldBeTrue)
				So(res.Score, ShouldEqual, 50)
				So(errors.Is(res.Err, errStoreDown), ShouldBeTrue)
				So(f.store.writes(), ShouldEqual, before)
			})
		})
	})

	Convey("Given a store whose user writes fail", t, func() {
		f := newFixture()
		uid := f.user("Ada")
		f.store.failUpdate[repository.CollectionUsers] = true

		Convey("When the score is computed", func() {
			res, err := f.engine.ComputeScore(ctx, uid)

			Convey("Then the derived score is still returned", func() {
				So(err, ShouldBeNil)
				So(res.UsedFallback, ShouldBeFalse)
				So(res.Score, ShouldEqual, 65)
				So(errors.Is(res.Err, errStoreDown), ShouldBeTrue)
			})

			Convey("And the history write went through on its own", func() {
				hist, err := f.engine.GetHistory(ctx, uid, 10)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given an empty user id", t, func() {
		f := newFixture()
		_, err := f.engine.ComputeScore(ctx, " ")
		So(errors.Is(err, service.ErrInvalidUser), ShouldBeTrue)
	})
}

func TestEngineConcurrentComputations(t *testing.T) {
	ctx := context.Background()

	Convey("Given many concurrent computations for one user", t, func() {
		f := newFixture()
		uid := f.user("Ada")
		f.task(uid, true, true)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.engine.ComputeScore(ctx, uid)
			}()
		}
		wg.Wait()

		Convey("Then no score point is lost", func() {
			u, err := f.users.Get(ctx, uid)
			So(err, ShouldBeNil)
			So(u.ScoreHistory, ShouldHaveLength, n)

			hist, err := f.engine.GetHistory(ctx, uid, 100)
			So(err, ShouldBeNil)
			So(hist, ShouldHaveLength, n)
		})
	})
}

func TestEngineTrend(t *testing.T) {
	ctx := context.Background()

	Convey("Given a user without history", t, func() {
		f := newFixture()
		uid := f.user("Ada")

		trend, err := f.engine.GetTrend(ctx, uid)
		So(err, ShouldBeNil)
		So(trend, ShouldEqual, model.TrendStable)
	})

	Convey("Given a rising history", t, func() {
		f := newFixture()
		uid := f.user("Ada")
		hist := repository.NewScoreHistory(f.store)
		for i, s := range []int{40, 40, 40, 80, 80, 80} {
			_, err := hist.Append(ctx, model.ScoreHistoryEntry{UserID: uid, Score: s, Timestamp: f.now.Add(time.Duration(i) * time.Minute)})
			So(err, ShouldBeNil)
		}

		trend, err := f.engine.GetTrend(ctx, uid)
		So(err, ShouldBeNil)
		So(trend, ShouldEqual, model.TrendUp)

		Convey("And a failing history read reads as stable", func() {
			f.store.failQuery[repository.CollectionScoreHistory] = true
			trend, err := f.engine.GetTrend(ctx, uid)
			So(err, ShouldBeNil)
			So(trend, ShouldEqual, model.TrendStable)

			_, err = f.engine.GetHistory(ctx, uid, 5)
			So(errors.Is(err, errStoreDown), ShouldBeTrue)
		})
	})
}

func TestEngineReviews(t *testing.T) {
	ctx := context.Background()

	Convey("Given two users", t, func() {
		f := newFixture()
		ada := f.user("Ada")
		bob := f.user("Bob")

		Convey("When Bob reviews Ada", func() {
			id, err := f.engine.SubmitReview(ctx, service.ReviewInput{
				ReviewerID: bob, ReviewedUserID: ada, ProjectID: "p1", Score: 140, Comment: "great",
			})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then the score is clamped and Ada is recomputed before returning", func() {
				reviews, err := f.engine.GetUserReviews(ctx, ada, 10)
				So(err, ShouldBeNil)
				So(reviews, ShouldHaveLength, 1)
				So(reviews[0].Score, ShouldEqual, 100)

				u, err := f.users.Get(ctx, ada)
				So(err, ShouldBeNil)
				So(u.ScoreHistory, ShouldHaveLength, 1)
				// 100*0.5 + 0*0.3 + 100*0.2
				So(u.CommitmentScore, ShouldEqual, 70)
			})

			Convey("And a second review for the same project is rejected without a write", func() {
				before := f.store.writes()
				_, err := f.engine.SubmitReview(ctx, service.ReviewInput{
					ReviewerID: bob, ReviewedUserID: ada, ProjectID: "p1", Score: 10,
				})
				So(errors.Is(err, service.ErrDuplicateReview), ShouldBeTrue)
				So(f.store.writes(), ShouldEqual, before)

				reviews, _ := f.engine.GetUserReviews(ctx, ada, 10)
				So(reviews, ShouldHaveLength, 1)
			})

			Convey("And a review in another project is accepted", func() {
				_, err := f.engine.SubmitReview(ctx, service.ReviewInput{
					ReviewerID: bob, ReviewedUserID: ada, ProjectID: "p2", Score: 50,
				})
				So(err, ShouldBeNil)
			})
		})

		Convey("When concurrent duplicates race", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			accepted := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := f.engine.SubmitReview(ctx, service.ReviewInput{
						ReviewerID: bob, ReviewedUserID: ada, ProjectID: "p1", Score: 80,
					}); err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(accepted, ShouldEqual, 1)
		})

		Convey("When a user reviews themself", func() {
			_, err := f.engine.SubmitReview(ctx, service.ReviewInput{
				ReviewerID: ada, ReviewedUserID: ada, ProjectID: "p1", Score: 100,
			})
			So(errors.Is(err, service.ErrSelfReview), ShouldBeTrue)
		})

		Convey("When the review lacks a project", func() {
			_, err := f.engine.SubmitReview(ctx, service.ReviewInput{ReviewerID: bob, ReviewedUserID: ada, Score: 100})
			So(errors.Is(err, service.ErrInvalidReview), ShouldBeTrue)
		})
	})
}
