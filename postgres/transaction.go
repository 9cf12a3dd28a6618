package postgres

import (
	"context"
	"fmt"
)

// runTxControl is the transaction counter state machine.
// It is called from the actor goroutine (via admit in actor.go) with
// s.pending already set to the caller's request; it either replies
// immediately with no socket round-trip (commit/rollback at depth 0, and
// every commit at depth >= 2) or sends one real SQL statement and lets the
// normal query pipeline finish the reply.
func (s *session) runTxControl(sql string) error {
	switch sql {
	case txBegin:
		s.transactions++
		if s.transactions == 1 {
			return s.startQuery("BEGIN", nil)
		}
		return s.startQuery(fmt.Sprintf("SAVEPOINT postgrex_%d", s.transactions-1), nil)

	case txCommit:
		if s.transactions == 0 {
			s.reply(&Result{Command: "commit"}, nil)
			return nil
		}
		s.transactions--
		if s.transactions == 0 {
			return s.startQuery("COMMIT", nil)
		}
		// Deferred inner commit: no SQL sent, matching the
		// "inner commits are no-ops" rule.
		s.reply(&Result{Command: "commit"}, nil)
		return nil

	case txRollback:
		if s.transactions == 0 {
			s.reply(&Result{Command: "rollback"}, nil)
			return nil
		}
		depth := s.transactions
		s.transactions--
		if depth == 1 {
			return s.startQuery("ROLLBACK", nil)
		}
		return s.startQuery(fmt.Sprintf("ROLLBACK TO SAVEPOINT postgrex_%d", depth-1), nil)
	}

	return &ProtocolError{Reason: "unknown transaction control request"}
}

const (
	txBegin    = "\x00begin"
	txCommit   = "\x00commit"
	txRollback = "\x00rollback"
)

// Begin increments the nesting counter, issuing a real BEGIN only when
// entering the outermost transaction.
func (c *Conn) Begin(ctx context.Context) error {
	return c.doRequest(ctx, &request{kind: requestTxControl, sql: txBegin})
}

// Commit decrements the nesting counter, issuing a real COMMIT only when
// leaving the outermost transaction; inner commits are pure bookkeeping.
func (c *Conn) Commit(ctx context.Context) error {
	return c.doRequest(ctx, &request{kind: requestTxControl, sql: txCommit})
}

// Rollback always issues SQL when inside a transaction: ROLLBACK at depth
// 1, ROLLBACK TO SAVEPOINT at any deeper depth.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.doRequest(ctx, &request{kind: requestTxControl, sql: txRollback})
}

// InTransaction runs fn inside Begin/Commit, rolling back on error or
// panic and re-raising either afterward. Returning ErrRollback from fn (or
// panicking with it) rolls back and returns nil, a "throw to cancel" idiom for aborting a
// transaction without surfacing an error to fn's own caller.
func (c *Conn) InTransaction(ctx context.Context, fn func(*Conn) (any, error)) (result any, err error) {
	if err := c.Begin(ctx); err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = c.Rollback(ctx)
			if p == ErrRollback {
				result, err = nil, nil
				return
			}
			panic(p)
		}
	}()

	result, err = fn(c)
	if err != nil {
		_ = c.Rollback(ctx)
		if err == ErrRollback {
			return nil, nil
		}
		return nil, err
	}

	if err := c.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
