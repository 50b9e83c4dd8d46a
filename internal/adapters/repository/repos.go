package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
)

// sortKey is an extra numeric field written next to each typed document so
// that recency ordering does not depend on timestamp string formats.
const sortKey = "sortTs"

func withSortKey(v any, ts time.Time) (Document, error) {
	doc, err := toDocument(v)
	if err != nil {
		return nil, err
	}
	doc[sortKey] = ts.UnixMicro()
	return doc, nil
}

func decodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := fromDocument(d, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Users reads and writes user documents.
type Users struct{ store DocumentStore }

// NewUsers wraps store.
func NewUsers(store DocumentStore) *Users { return &Users{store: store} }

// Create stores u and returns its id.
func (r *Users) Create(ctx context.Context, u model.User) (string, error) {
	doc, err := withSortKey(u, u.CreatedAt)
	if err != nil {
		return "", err
	}
	return r.store.Create(ctx, CollectionUsers, doc)
}

// Get returns ErrNotFound for unknown ids.
func (r *Users) Get(ctx context.Context, id string) (model.User, error) {
	var u model.User
	doc, err := r.store.Get(ctx, CollectionUsers, id)
	if err != nil {
		return u, err
	}
	err = fromDocument(doc, &u)
	return u, err
}

// SetScore overwrites the user's current commitment score.
func (r *Users) SetScore(ctx context.Context, id string, score int) error {
	return r.store.Update(ctx, CollectionUsers, id, Document{"commitmentScore": score}, true)
}

// AppendScorePoint adds p to the end of the user's score series.
func (r *Users) AppendScorePoint(ctx context.Context, id string, p model.ScorePoint) error {
	u, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	points, err := toDocumentList(append(u.ScoreHistory, p))
	if err != nil {
		return err
	}
	return r.store.Update(ctx, CollectionUsers, id, Document{"scoreHistory": points}, true)
}

// TopByScore returns up to limit users by commitment score, highest first.
func (r *Users) TopByScore(ctx context.Context, limit int) ([]model.User, error) {
	docs, err := r.store.Query(ctx, CollectionUsers, Query{OrderBy: "commitmentScore", Desc: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	return decodeAll[model.User](docs)
}

// Count returns the number of users.
func (r *Users) Count(ctx context.Context) (int, error) {
	docs, err := r.store.Query(ctx, CollectionUsers, Query{})
	return len(docs), err
}

func toDocumentList(v any) (any, error) {
	doc, err := toDocument(struct {
		V any `json:"v"`
	}{v})
	if err != nil {
		return nil, err
	}
	return doc["v"], nil
}

// Tasks reads and writes task documents.
type Tasks struct{ store DocumentStore }

// NewTasks wraps store.
func NewTasks(store DocumentStore) *Tasks { return &Tasks{store: store} }

// Create stores t and returns its id.
func (r *Tasks) Create(ctx context.Context, t model.Task) (string, error) {
	doc, err := withSortKey(t, t.CreatedAt)
	if err != nil {
		return "", err
	}
	return r.store.Create(ctx, CollectionTasks, doc)
}

// Get returns ErrNotFound for unknown ids.
func (r *Tasks) Get(ctx context.Context, id string) (model.Task, error) {
	var t model.Task
	doc, err := r.store.Get(ctx, CollectionTasks, id)
	if err != nil {
		return t, err
	}
	err = fromDocument(doc, &t)
	return t, err
}

// Save replaces the stored task with t. The last writer wins.
func (r *Tasks) Save(ctx context.Context, t model.Task) error {
	if t.ID == "" {
		return fmt.Errorf("%w: task without id", ErrInvalidQuery)
	}
	doc, err := withSortKey(t, t.CreatedAt)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, CollectionTasks, t.ID, doc, false)
}

// Delete removes the task.
func (r *Tasks) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionTasks, id)
}

// ListByProject returns a project's tasks, oldest first.
func (r *Tasks) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	docs, err := r.store.Query(ctx, CollectionTasks, Query{}.
		Where("projectId", OpEq, projectID))
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Task](docs)
}

// ListByAssignee returns every task assigned to userID.
func (r *Tasks) ListByAssignee(ctx context.Context, userID string) ([]model.Task, error) {
	docs, err := r.store.Query(ctx, CollectionTasks, Query{}.
		Where("assigneeId", OpEq, userID))
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Task](docs)
}

// Count returns the number of tasks.
func (r *Tasks) Count(ctx context.Context) (int, error) {
	docs, err := r.store.Query(ctx, CollectionTasks, Query{})
	return len(docs), err
}

// Reviews reads and writes peer reviews.
type Reviews struct{ store DocumentStore }

// NewReviews wraps store.
func NewReviews(store DocumentStore) *Reviews { return &Reviews{store: store} }

// Create stores rv and returns its id.
func (r *Reviews) Create(ctx context.Context, rv model.PeerReview) (string, error) {
	doc, err := withSortKey(rv, rv.CreatedAt)
	if err != nil {
		return "", err
	}
	return r.store.Create(ctx, CollectionReviews, doc)
}

// Exists reports whether reviewer already reviewed reviewed within project.
func (r *Reviews) Exists(ctx context.Context, reviewerID, reviewedUserID, projectID string) (bool, error) {
	docs, err := r.store.Query(ctx, CollectionReviews, Query{Limit: 1}.
		Where("reviewerId", OpEq, reviewerID).
		Where("reviewedUserId", OpEq, reviewedUserID).
		Where("projectId", OpEq, projectID))
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// ListForUser returns reviews received by userID, newest first.
func (r *Reviews) ListForUser(ctx context.Context, userID string, limit int) ([]model.PeerReview, error) {
	docs, err := r.store.Query(ctx, CollectionReviews, Query{OrderBy: sortKey, Desc: true, Limit: limit}.
		Where("reviewedUserId", OpEq, userID))
	if err != nil {
		return nil, err
	}
	return decodeAll[model.PeerReview](docs)
}

// Count returns the number of reviews.
func (r *Reviews) Count(ctx context.Context) (int, error) {
	docs, err := r.store.Query(ctx, CollectionReviews, Query{})
	return len(docs), err
}

// ScoreHistory appends and reads score computations.
type ScoreHistory struct{ store DocumentStore }

// NewScoreHistory wraps store.
func NewScoreHistory(store DocumentStore) *ScoreHistory { return &ScoreHistory{store: store} }

// Append stores e and returns its id.
func (r *ScoreHistory) Append(ctx context.Context, e model.ScoreHistoryEntry) (string, error) {
	doc, err := withSortKey(e, e.Timestamp)
	if err != nil {
		return "", err
	}
	return r.store.Create(ctx, CollectionScoreHistory, doc)
}

// Recent returns up to limit entries for userID, newest first.
func (r *ScoreHistory) Recent(ctx context.Context, userID string, limit int) ([]model.ScoreHistoryEntry, error) {
	docs, err := r.store.Query(ctx, CollectionScoreHistory, Query{OrderBy: sortKey, Desc: true, Limit: limit}.
		Where("userId", OpEq, userID))
	if err != nil {
		return nil, err
	}
	return decodeAll[model.ScoreHistoryEntry](docs)
}
