package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"remindbot/internal/users"
	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if err != nil {
				logger.Warn("request failed", append(fields, logx.Any("err", err))...)
			} else {
				// Keep INFO useful: short successful requests go to DEBUG.
				if d >= 750*time.Millisecond {
					logger.Info("request ok", fields...)
				} else {
					logger.Debug("request ok", fields...)
				}
			}
			return err
		}
	}
}

// MWGate runs the inbound access gate before the handler: lazy registration,
// block/whitelist mode and the per-user rate limit. Owners bypass it so a
// misconfigured whitelist can never lock the operator out.
func MWGate(serv *Services) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if serv == nil || serv.Users == nil {
				return next(ctx, req)
			}
			if isOwner(req.FromID, req.OwnerUserID) {
				return next(ctx, req)
			}

			username, firstName := req.senderNames()
			err := serv.Users.Gate(ctx, req.FromID, username, firstName)
			switch {
			case err == nil:
				return next(ctx, req)
			case errors.Is(err, users.ErrRateLimited):
				// Replying here would hand the spammer an amplifier. For
				// callbacks we still clear the loading spinner.
				if cb := req.Update.Callback; cb != nil {
					_ = req.Adapter.AnswerCallback(ctx, cb.ID, "")
				}
				req.Logger.Debug("update rate limited")
				return nil
			case errors.Is(err, users.ErrBlocked), errors.Is(err, users.ErrNotWhitelisted):
				req.replyDenied(ctx)
				req.Logger.Debug("update gated", logx.Any("err", err))
				return nil
			default:
				// Store trouble: fail closed but tell the user something.
				req.replyError(ctx, "❌ An error occurred. Please try again.")
				return err
			}
		}
	}
}

func (req *Request) senderNames() (username, firstName string) {
	switch {
	case req.Update.Message != nil:
		return req.Update.Message.FromUsername, req.Update.Message.FromFirstName
	case req.Update.Callback != nil:
		return req.Update.Callback.FromUsername, req.Update.Callback.FromFirstName
	default:
		return "", ""
	}
}

func (req *Request) replyDenied(ctx context.Context) {
	if cb := req.Update.Callback; cb != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, "🚫 Access denied.")
		return
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, "🚫 Sorry, you don't have permission to use this bot.", nil)
}

func (req *Request) replyError(ctx context.Context, text string) {
	if cb := req.Update.Callback; cb != nil {
		_ = req.Adapter.AnswerCallback(ctx, cb.ID, text)
		return
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, text, nil)
}
