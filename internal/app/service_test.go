package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingPublisher struct {
	mu       sync.Mutex
	tasks    []model.TaskUpdate
	projects []model.ProjectUpdate
}

func (r *recordingPublisher) PublishTaskUpdate(_ context.Context, u model.TaskUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, u)
}

func (r *recordingPublisher) PublishProjectUpdate(_ context.Context, u model.ProjectUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects = append(r.projects, u)
}

func (r *recordingPublisher) taskUpdates() []model.TaskUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TaskUpdate(nil), r.tasks...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func ptr[T any](v T) *T { return &v }

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(repository.NewMemoryStore(), service.WithWorkerCount(2), service.WithQueueSize(16))
		ctx := context.Background()

		Convey("When it has not been started", func() {
			Convey("Then recomputes cannot be queued", func() {
				err := svc.EnqueueRecompute(ctx, "u1", "test")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})

			Convey("And stats report it stopped", func() {
				So(svc.GetStats(ctx)["started"], ShouldBeFalse)
			})
		})

		Convey("When started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldBeTrue)
			So(stats["workerCount"], ShouldEqual, 2)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats(ctx)["started"], ShouldBeFalse)
		})
	})
}

func TestService_Tasks(t *testing.T) {
	Convey("Given a started service with a publisher", t, func() {
		ctx := context.Background()
		pub := &recordingPublisher{}
		svc := service.New(repository.NewMemoryStore(), service.WithPublisher(pub), service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		ada, err := svc.CreateUser(ctx, "Ada")
		So(err, ShouldBeNil)
		So(ada.CommitmentScore, ShouldEqual, model.DefaultCommitmentScore)

		Convey("When a task is created", func() {
			task, err := svc.CreateTask(ctx, service.TaskInput{
				ProjectID: "p1", Title: "Write docs", AssigneeID: ada.ID, AssigneeName: ada.Name,
			}, ada.ID)
			So(err, ShouldBeNil)

			Convey("Then defaults are applied and the room is told", func() {
				So(task.Status, ShouldEqual, model.StatusTodo)
				So(task.Priority, ShouldEqual, model.PriorityMedium)
				updates := pub.taskUpdates()
				So(updates, ShouldHaveLength, 1)
				So(updates[0].TaskID, ShouldEqual, task.ID)
				So(updates[0].NewStatus, ShouldEqual, model.StatusTodo)
				So(updates[0].UpdatedBy, ShouldEqual, ada.ID)
			})

			Convey("And the assignee's score is recomputed in the background", func() {
				// one open task: 100*0.5 + 0*0.3 + 75*0.2 = 65
				So(eventually(func() bool {
					u, err := svc.GetUser(ctx, ada.ID)
					return err == nil && len(u.ScoreHistory) > 0 && u.CommitmentScore == 65
				}), ShouldBeTrue)
			})

			Convey("When it is moved to completed", func() {
				moved, err := svc.UpdateTask(ctx, task.ID, service.TaskPatch{Status: ptr(model.StatusCompleted)}, ada.ID)
				So(err, ShouldBeNil)

				Convey("Then it is stamped and the move is broadcast", func() {
					So(moved.CompletedAt, ShouldNotBeNil)
					updates := pub.taskUpdates()
					last := updates[len(updates)-1]
					So(last.OldStatus, ShouldEqual, model.StatusTodo)
					So(last.NewStatus, ShouldEqual, model.StatusCompleted)
					So(last.Task.ID, ShouldEqual, task.ID)
				})

				Convey("And the recompute sees the completion", func() {
					// no deadline counts as late: 0*0.5 + 100*0.3 + 75*0.2 = 45
					So(eventually(func() bool {
						u, err := svc.GetUser(ctx, ada.ID)
						return err == nil && u.CommitmentScore == 45
					}), ShouldBeTrue)
				})

				Convey("And moving it back clears the completion time", func() {
					back, err := svc.UpdateTask(ctx, task.ID, service.TaskPatch{Status: ptr(model.StatusInReview)}, ada.ID)
					So(err, ShouldBeNil)
					So(back.CompletedAt, ShouldBeNil)
				})
			})

			Convey("When it is deleted", func() {
				So(svc.DeleteTask(ctx, task.ID, ada.ID), ShouldBeNil)

				Convey("Then a delete action is broadcast", func() {
					updates := pub.taskUpdates()
					last := updates[len(updates)-1]
					So(last.Action, ShouldEqual, model.TaskActionDelete)
					So(last.Status, ShouldEqual, model.StatusTodo)
					So(last.Task, ShouldBeNil)
				})

				Convey("And it is gone", func() {
					_, err := svc.GetTask(ctx, task.ID)
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When listing the project", func() {
				list, err := svc.ListTasks(ctx, "p1")
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
			})
		})

		Convey("When a task is invalid", func() {
			_, err := svc.CreateTask(ctx, service.TaskInput{ProjectID: "p1"}, ada.ID)
			So(errors.Is(err, service.ErrInvalidTask), ShouldBeTrue)

			_, err = svc.CreateTask(ctx, service.TaskInput{ProjectID: "p1", Title: "x", Status: "archived"}, ada.ID)
			So(errors.Is(err, service.ErrInvalidTask), ShouldBeTrue)
			So(pub.taskUpdates(), ShouldBeEmpty)
		})

		Convey("When updating an unknown task", func() {
			_, err := svc.UpdateTask(ctx, "missing", service.TaskPatch{Title: ptr("x")}, ada.ID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a project update is published", func() {
			err := svc.PublishProjectUpdate(ctx, model.ProjectUpdate{ProjectID: "p1", Update: map[string]any{"type": "renamed"}})
			So(err, ShouldBeNil)
			So(pub.projects, ShouldHaveLength, 1)

			err = svc.PublishProjectUpdate(ctx, model.ProjectUpdate{ProjectID: "p1", Update: map[string]any{}})
			So(errors.Is(err, service.ErrInvalidProjectUpdate), ShouldBeTrue)
		})
	})
}

func TestService_Leaderboard(t *testing.T) {
	Convey("Given users with different scores", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		users := repository.NewUsers(store)
		for name, score := range map[string]int{"ada": 82, "bob": 45, "cyd": 67} {
			_, err := users.Create(ctx, model.User{ID: name, Name: name, CommitmentScore: score})
			So(err, ShouldBeNil)
		}
		svc := service.New(store, service.WithMaxLeaderboardLimit(2))

		Convey("When the leaderboard is read", func() {
			rows, err := svc.Leaderboard(ctx, 50)
			So(err, ShouldBeNil)

			Convey("Then it is ranked and capped", func() {
				So(rows, ShouldHaveLength, 2)
				So(rows[0].UserID, ShouldEqual, "ada")
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[1].UserID, ShouldEqual, "cyd")
			})
		})

		Convey("When a score view is requested", func() {
			view, err := svc.ScoreView(ctx, "bob")
			So(err, ShouldBeNil)
			So(view.Score, ShouldEqual, 65)
			So(view.Trend, ShouldEqual, model.TrendStable)
		})

		Convey("When a recompute runs for an assignee with no user record", func() {
			err := svc.Recompute(ctx, model.RecomputeJob{UserID: "zed", Reason: "task_completed"})
			So(err, ShouldBeNil)

			history, err := svc.GetHistory(ctx, "zed", 10)
			So(err, ShouldBeNil)
			So(history, ShouldBeEmpty)
		})

		Convey("When a score view is requested for an unknown user", func() {
			_, err := svc.ScoreView(ctx, "zed")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When stats are read", func() {
			stats := svc.GetStats(ctx)
			So(stats["totalUsers"], ShouldEqual, 3)
			So(stats["totalTasks"], ShouldEqual, 0)
		})
	})
}

func TestService_Coalescing(t *testing.T) {
	Convey("Given a started service with no free workers", t, func() {
		ctx := context.Background()
		svc := service.New(repository.NewMemoryStore(), service.WithWorkerCount(1), service.WithQueueSize(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the same user is enqueued repeatedly", func() {
			var errs []error
			for i := 0; i < 50; i++ {
				errs = append(errs, svc.EnqueueRecompute(ctx, "u1", "burst"))
			}

			Convey("Then duplicates coalesce instead of filling the queue", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
			})
		})
	})
}
