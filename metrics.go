// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"expvar"

	"github.com/creachadair/orb/bufpool"
	"github.com/creachadair/orb/threadpool"
)

// brokerMetrics record broker activity counters.
type brokerMetrics struct {
	frameRecv    expvar.Int
	frameSent    expvar.Int
	frameDropped expvar.Int
	callIn       expvar.Int // number of inbound calls received
	callInErr    expvar.Int // number of inbound calls reporting an error
	callOut      expvar.Int // number of outbound calls initiated
	callOutErr   expvar.Int // number of outbound calls reporting an error
	callTimeout  expvar.Int // number of outbound calls that timed out
	callActive   expvar.Int // inbound
	callPending  expvar.Int // outbound
	connOpen     expvar.Int

	emap *expvar.Map
}

func newBrokerMetrics(bufs *bufpool.Pool, pool *threadpool.Pool) *brokerMetrics {
	bm := &brokerMetrics{emap: new(expvar.Map)}
	bm.emap.Set("frames_received", &bm.frameRecv)
	bm.emap.Set("frames_sent", &bm.frameSent)
	bm.emap.Set("frames_dropped", &bm.frameDropped)
	bm.emap.Set("calls_in", &bm.callIn)
	bm.emap.Set("calls_in_failed", &bm.callInErr)
	bm.emap.Set("calls_active", &bm.callActive)
	bm.emap.Set("calls_out", &bm.callOut)
	bm.emap.Set("calls_out_failed", &bm.callOutErr)
	bm.emap.Set("calls_pending", &bm.callPending)
	bm.emap.Set("calls_timeout", &bm.callTimeout)
	bm.emap.Set("connections_open", &bm.connOpen)
	bm.emap.Set("buffers_live", expvar.Func(func() any { return bufs.Stats().Live }))
	bm.emap.Set("buffers_held", expvar.Func(func() any { return bufs.Stats().Held }))
	bm.emap.Set("workers", expvar.Func(func() any { return pool.Size() }))
	bm.emap.Set("jobs_pending", expvar.Func(func() any { return pool.Pending() }))
	return bm
}
