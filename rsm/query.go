package rsm

import (
	"context"
	"time"
)

type queryReq struct {
	ctx   context.Context
	q     interface{}
	reply chan commandReply
}

// Query serves q against the currently applied state without going
// through consensus; the host itself never returns an error for it (any
// failure is surfaced through the user-returned reply), matching the
// "none from host" error column in the spec.
func (h *Host) Query(ctx context.Context, q interface{}, timeout time.Duration) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &queryReq{ctx: ctx, q: q, reply: make(chan commandReply, 1)}
	select {
	case h.queryCh <- req:
	case <-ctx.Done():
		return nil, errTimeout
	}

	select {
	case r := <-req.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, errTimeout
	}
}

func (h *Host) handleQuery(req *queryReq) {
	start := time.Now()
	defer h.statsTiming("query.time", start)
	h.statsInc("query.count", 1)

	reply, newData := h.mod.HandleQuery(req.q, h.appliedRevision(), h.modState, h.modData)
	h.modData = newData
	deliverReply(req.ctx, req.reply, commandReply{reply: reply})
}
