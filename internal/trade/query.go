package trade

import "context"

const maxHistoryDepth = 50

// Get returns a trade visible to actor: its parties and moderators.
func (e *Engine) Get(ctx context.Context, id string, actor Actor) (*Trade, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actor.ID) && !actor.IsModerator() {
		return nil, ErrInvalidActor.With("user is not a party to this trade")
	}
	return t, nil
}

// List returns trades matching f. Non-moderators only ever see their own.
func (e *Engine) List(ctx context.Context, actor Actor, f ListFilter) ([]*Trade, error) {
	if !actor.IsModerator() || f.UserID == "" {
		f.UserID = actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrValidation.With("unknown status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return e.store.List(ctx, f)
}

// History returns the negotiation chain containing id, oldest offer first.
func (e *Engine) History(ctx context.Context, id string, actor Actor) ([]*Trade, error) {
	t, err := e.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	var older []*Trade
	for prev := t.Supersedes; prev != "" && len(older) < maxHistoryDepth; {
		pt, err := e.store.Get(ctx, prev)
		if err != nil {
			return nil, err
		}
		older = append(older, pt)
		prev = pt.Supersedes
	}

	chain := make([]*Trade, 0, len(older)+1)
	for i := len(older) - 1; i >= 0; i-- {
		chain = append(chain, older[i])
	}
	chain = append(chain, t)

	for next := t.SupersededBy; next != "" && len(chain) < 2*maxHistoryDepth; {
		nt, err := e.store.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, nt)
		next = nt.SupersededBy
	}
	return chain, nil
}

// DisputeQueue lists open disputes.
func (e *Engine) DisputeQueue(ctx context.Context, actor Actor) ([]*Trade, error) {
	if !actor.IsModerator() {
		return nil, ErrInvalidActor.With("moderator access only")
	}
	return e.store.List(ctx, ListFilter{Status: StatusDisputed, Limit: 200})
}

// Stats counts trades by status.
func (e *Engine) Stats(ctx context.Context, actor Actor) (map[Status]int, error) {
	if !actor.IsModerator() {
		return nil, ErrInvalidActor.With("moderator access only")
	}
	return e.store.CountByStatus(ctx)
}
