package model_test

import (
	"testing"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTask_MoveTo(t *testing.T) {
	Convey("Given a task in progress", t, func() {
		t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		task := &model.Task{
			ID:        "t1",
			ProjectID: "p1",
			Title:     "ship it",
			Status:    model.StatusInProgress,
			Priority:  model.PriorityHigh,
		}

		Convey("When it moves to completed", func() {
			old, changed := task.MoveTo(model.StatusCompleted, t0)

			Convey("Then completedAt is stamped at the transition", func() {
				So(changed, ShouldBeTrue)
				So(old, ShouldEqual, model.StatusInProgress)
				So(task.CompletedAt, ShouldNotBeNil)
				So(task.CompletedAt.Equal(t0), ShouldBeTrue)
			})

			Convey("And saving it as completed again does not re-stamp", func() {
				_, changed := task.MoveTo(model.StatusCompleted, t0.Add(time.Hour))
				So(changed, ShouldBeFalse)
				So(task.CompletedAt.Equal(t0), ShouldBeTrue)
			})

			Convey("And moving it back clears completedAt", func() {
				task.MoveTo(model.StatusInReview, t0.Add(time.Hour))
				So(task.CompletedAt, ShouldBeNil)
			})
		})
	})
}

func TestTask_OnTime(t *testing.T) {
	Convey("Given completed tasks", t, func() {
		deadline := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		early := deadline.Add(-time.Hour)
		late := deadline.Add(time.Hour)

		So((&model.Task{Deadline: &deadline, CompletedAt: &early}).OnTime(), ShouldBeTrue)
		So((&model.Task{Deadline: &deadline, CompletedAt: &deadline}).OnTime(), ShouldBeTrue)
		So((&model.Task{Deadline: &deadline, CompletedAt: &late}).OnTime(), ShouldBeFalse)
		So((&model.Task{CompletedAt: &early}).OnTime(), ShouldBeFalse)
		So((&model.Task{Deadline: &deadline}).OnTime(), ShouldBeFalse)
	})
}

func TestTask_Validate(t *testing.T) {
	Convey("Given task validation", t, func() {
		valid := model.Task{ProjectID: "p", Title: "x", Status: model.StatusTodo, Priority: model.PriorityLow}
		So(valid.Validate(), ShouldBeNil)

		noTitle := valid
		noTitle.Title = ""
		So(noTitle.Validate(), ShouldNotBeNil)

		badStatus := valid
		badStatus.Status = "done"
		So(badStatus.Validate(), ShouldNotBeNil)

		badPriority := valid
		badPriority.Priority = "whenever"
		So(badPriority.Validate(), ShouldNotBeNil)
	})
}

func TestEnvelope(t *testing.T) {
	Convey("Given a message envelope", t, func() {
		env, err := model.NewEnvelope(model.OpEmit, model.EventMessage, "p1", model.Message{Text: "hi", SenderName: "Ada"})
		So(err, ShouldBeNil)
		So(env.ID, ShouldNotBeEmpty)

		Convey("Then the payload decodes back", func() {
			var msg model.Message
			So(env.Decode(&msg), ShouldBeNil)
			So(msg.Text, ShouldEqual, "hi")
			So(msg.SenderName, ShouldEqual, "Ada")
		})

		Convey("And an empty payload is an error", func() {
			env.Payload = nil
			var msg model.Message
			So(env.Decode(&msg), ShouldNotBeNil)
		})
	})

	Convey("Given event names", t, func() {
		So(model.EventTyping.Known(), ShouldBeTrue)
		So(model.EventName("unknown").Known(), ShouldBeFalse)
		So(model.EventMessage.RequiresAck(), ShouldBeTrue)
		So(model.EventTyping.RequiresAck(), ShouldBeFalse)
	})

	Convey("Given a project update", t, func() {
		pu := model.ProjectUpdate{ProjectID: "p", Update: map[string]any{"type": "renamed"}}
		So(pu.Type(), ShouldEqual, "renamed")
		So(model.ProjectUpdate{}.Type(), ShouldEqual, "")
	})
}
