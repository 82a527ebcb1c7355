package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/junduck/replayd/internal/broker"
	"github.com/junduck/replayd/internal/protocol"
	"github.com/junduck/replayd/internal/session"
)

func (b *bound) handleLogin(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	if conn.ReplayActive() {
		return nil, protocol.NewError(protocol.CodeReplayActive, "cannot log in while a replay is active")
	}

	var params protocol.LoginParams
	if err := protocol.DecodeParams(rawParams, &params); err != nil {
		return nil, err
	}
	if !params.Config.InitialCash.IsPositive() {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "initialCash must be > 0")
	}

	client := session.NewClientSession(cid, params.Config.ToBrokerConfig(), params.Config.RiskFree())
	conn.Login(client)

	return protocol.LoginResult{Connected: true, Timestamp: time.Now()}, nil
}

func (b *bound) handleLogout(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	conn.Logout(cid)
	return protocol.LogoutResult{Connected: false, Timestamp: time.Now()}, nil
}

func (b *bound) handleSubscribe(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	var symbols []string
	if err := protocol.DecodeParams(rawParams, &symbols); err != nil {
		return nil, err
	}
	client, _ := conn.Client(cid)
	return client.AddSubscriptions(symbols, conn.ReplayActive()), nil
}

func (b *bound) handleUnsubscribe(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	var symbols []string
	if err := protocol.DecodeParams(rawParams, &symbols); err != nil {
		return nil, err
	}
	client, _ := conn.Client(cid)
	return client.RemoveSubscriptions(symbols, conn.ReplayActive()), nil
}

func (b *bound) handleGetPosition(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	client, _ := conn.Client(cid)
	return client.Broker.Position(), nil
}

func (b *bound) handleGetOpenOrders(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	client, _ := conn.Client(cid)
	return client.Broker.OpenOrders(), nil
}

// emitOrderEvent surfaces an order-domain outcome as an `order` event,
// never as a request error — duplicate ids, invalid combinations, and
// partial amend/cancel matches are not failures (SPEC_FULL.md §4.1/§7).
func (b *bound) emitOrderEvent(ctx context.Context, cid string, updated []broker.OrderState) {
	if len(updated) == 0 {
		return
	}
	b.emit.EmitEvent(ctx, cid, protocol.EventFrame{
		Type:  "order",
		Order: &protocol.OrderEventWire{Updated: updated},
	})
}

func acceptedCount(states []broker.OrderState) int {
	n := 0
	for _, s := range states {
		if s.Status != broker.Rejected {
			n++
		}
	}
	return n
}

func (b *bound) handleSubmitOrders(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	var wire []protocol.OrderWire
	if err := protocol.DecodeParams(rawParams, &wire); err != nil {
		return nil, err
	}
	client, _ := conn.Client(cid)

	orders := make([]broker.Order, len(wire))
	for i, o := range wire {
		orders[i] = o.ToOrder()
	}
	states := client.Broker.Submit(orders, time.Now())
	b.emitOrderEvent(ctx, cid, states)
	return acceptedCount(states), nil
}

func (b *bound) handleAmendOrders(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	var wire []protocol.PartialOrderWire
	if err := protocol.DecodeParams(rawParams, &wire); err != nil {
		return nil, err
	}
	client, _ := conn.Client(cid)

	partials := make([]broker.PartialOrder, len(wire))
	for i, p := range wire {
		partials[i] = p.ToPartialOrder()
	}
	matched := client.Broker.Amend(partials, time.Now())
	b.emitOrderEvent(ctx, cid, matched)
	return len(matched), nil
}

func (b *bound) handleCancelOrders(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	var ids []string
	if err := protocol.DecodeParams(rawParams, &ids); err != nil {
		return nil, err
	}
	client, _ := conn.Client(cid)
	matched := client.Broker.Cancel(ids, time.Now())
	b.emitOrderEvent(ctx, cid, matched)
	return len(matched), nil
}

func (b *bound) handleCancelAllOrders(ctx context.Context, conn *session.ConnSession, cid string, rawParams json.RawMessage) (interface{}, error) {
	client, _ := conn.Client(cid)
	cancelled := client.Broker.CancelAll(time.Now())
	b.emitOrderEvent(ctx, cid, cancelled)
	return len(cancelled), nil
}
