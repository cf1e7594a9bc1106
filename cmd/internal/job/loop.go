package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/session"
	"github.com/bbang93/macro-api/cmd/security/fingerprint"
	v1 "github.com/bbang93/macro-api/contracts/realtime/v1"
)

// Reserve attempt outcomes for the recorder.
const (
	outcomeSuccess   = "success"
	outcomeRetryable = "retryable"
	outcomeFatal     = "fatal"
)

const queueBuffer = 8

// run is the job goroutine.
func (e *Engine) run(ctx context.Context, j *Job, s *session.Session) {
	defer e.wg.Done()
	defer s.DetachJob(j.ID)
	defer j.cancel()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("job.panic", "job_id", j.ID, "panic", r)
			e.fail(j, fmt.Sprint(r), false)
		}
	}()

	if !j.start(e.now()) {
		return
	}
	e.emit(j, v1.TypeJobStarted, startedData{
		Departure:          j.Request.Departure,
		Arrival:            j.Request.Arrival,
		Date:               j.Request.Date,
		SelectedTrainCount: len(j.Request.SelectedTrains),
	})
	e.log.Info("job.run.start", "job_id", j.ID, "session", fingerprint.Of(j.SessionID))

	queue := make(chan rail.QueueStatus, queueBuffer)
	ctx = rail.WithQueue(ctx, queue)
	go e.forwardQueue(ctx, j, queue)

	for !j.cancelled() && ctx.Err() == nil {
		attempt := j.nextAttempt()
		e.rec.SearchAttempt()

		done, err := e.attempt(ctx, j, s, attempt)
		if done {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if re, ok := rail.AsError(err); ok {
				if !re.Retryable {
					e.fail(j, re.Message, true)
					return
				}
			} else {
				e.fail(j, err.Error(), false)
				return
			}
		}

		if err := e.sleep(ctx, e.wait()); err != nil {
			break
		}
	}

	// A session teardown or shutdown cancels the context without going through Cancel.
	external := j.finish(StatusCancelled, e.now(), nil, "")
	e.rec.JobFinished(string(StatusCancelled), e.elapsed(j))
	e.log.Info("job.run.cancelled", "job_id", j.ID, "external", external)
}

// attempt runs one search-and-reserve pass. done reports a terminal outcome.
func (e *Engine) attempt(ctx context.Context, j *Job, s *session.Session, attempt int) (bool, error) {
	req := j.Request

	query := rail.SearchQuery{
		Departure:  req.Departure,
		Arrival:    req.Arrival,
		Date:       req.Date,
		Time:       req.Time,
		Passengers: req.Passengers.Aggregate(),
		TrainTypes: req.TrainTypes,
	}
	trains, err := withReauth(ctx, e, s, func(c rail.Client) ([]rail.Train, error) {
		return c.SearchTrains(ctx, query)
	})
	if err != nil {
		e.log.Debug("job.search.fail", "job_id", j.ID, "attempt", attempt, "err", err)
		return false, err
	}

	e.emitProgress(j, attempt, trains)

	for _, idx := range req.SelectedTrains {
		if j.cancelled() || ctx.Err() != nil {
			return false, nil
		}
		if idx < 0 || idx >= len(trains) {
			continue
		}
		train := trains[idx]

		d := decide(train, req.SeatType, req.UseStandby)
		if d.skip() {
			continue
		}

		e.emit(j, v1.TypeReserveAttempt, reserveAttemptData{
			TrainIndex:  idx,
			TrainName:   train.TrainName,
			TrainNumber: train.TrainNumber,
			DepTime:     train.DepTime,
			SeatType:    d.seat,
			IsStandby:   d.standby,
		})

		rr := rail.ReserveRequest{
			Train:        train,
			Passengers:   req.Passengers,
			SeatType:     req.SeatType,
			PreferWindow: req.PreferWindow,
		}
		res, err := withReauth(ctx, e, s, func(c rail.Client) (rail.Reservation, error) {
			if d.standby {
				return c.ReserveStandby(ctx, rr)
			}
			return c.Reserve(ctx, rr)
		})
		if err == nil {
			e.rec.ReserveAttempt(outcomeSuccess)
			e.succeed(ctx, j, res, d.standby)
			return true, nil
		}

		re, ok := rail.AsError(err)
		if !ok {
			e.rec.ReserveAttempt(outcomeFatal)
			return false, err
		}
		e.emit(j, v1.TypeReserveFailed, reserveFailedData{
			TrainIndex:   idx,
			ErrorCode:    re.Code,
			ErrorMessage: re.Message,
			Retryable:    re.Retryable,
			IsStandby:    d.standby,
		})
		if !re.Retryable {
			e.rec.ReserveAttempt(outcomeFatal)
			return false, re
		}
		e.rec.ReserveAttempt(outcomeRetryable)
		// The train list is stale; search again before trying other indices.
		if re.Code == rail.CodeSearchNoResults {
			return false, re
		}
	}
	return false, nil
}

// withReauth runs call once, and on ErrReauthRequired logs in again and
// retries exactly once. A failed re-login is a fatal SESSION_EXPIRED.
func withReauth[T any](ctx context.Context, e *Engine, s *session.Session, call func(rail.Client) (T, error)) (T, error) {
	v, err := call(s.Client())
	if !errors.Is(err, rail.ErrReauthRequired) {
		return v, err
	}

	e.log.Warn("job.reauth.start", "session", fingerprint.Of(s.ID))
	c, rerr := e.sessions.Reauthenticate(ctx, s)
	if rerr != nil {
		var zero T
		return zero, rail.NewError(rail.CodeSessionExpired, msgReloginFailed, rerr.Error())
	}
	return call(c)
}

func (e *Engine) emitProgress(j *Job, attempt int, trains []rail.Train) {
	seats := make([]seatAvailability, 0, len(j.Request.SelectedTrains))
	available := 0
	for _, idx := range j.Request.SelectedTrains {
		if idx < 0 || idx >= len(trains) {
			continue
		}
		t := trains[idx]
		seats = append(seats, seatAvailability{
			TrainIndex: idx,
			General:    t.GeneralAvailable,
			Special:    t.SpecialAvailable,
			Standby:    t.StandbyAvailable,
		})
		if t.GeneralAvailable || t.SpecialAvailable || t.StandbyAvailable {
			available++
		}
	}

	msg := fmt.Sprintf("조회 #%d: 빈 좌석 없음, 재조회...", attempt)
	if available > 0 {
		msg = fmt.Sprintf("좌석 발견! %d개 열차 예매 시도 중...", available)
	}

	_, elapsed := j.progress(e.now())
	e.emit(j, v1.TypeSearchProgress, searchProgressData{
		AttemptCount:   attempt,
		ElapsedSeconds: elapsed,
		FoundTrains:    len(trains),
		AvailableSeats: seats,
		AvailableCount: available,
		Message:        msg,
	})
	e.log.Debug("job.search.ok", "job_id", j.ID, "attempt", attempt, "found", len(trains), "available", available)
}

func (e *Engine) succeed(ctx context.Context, j *Job, res rail.Reservation, standby bool) {
	if !j.finish(StatusSuccess, e.now(), &res, "") {
		// A cancel landed first.
		return
	}
	attempts, elapsed := j.progress(e.now())

	e.emit(j, v1.TypeReserveSuccess, res)
	e.emit(j, v1.TypeJobCompleted, completedSuccessData{
		Status:         StatusSuccess,
		TotalAttempts:  attempts,
		ElapsedSeconds: elapsed,
		Reservation:    res,
		IsStandby:      standby,
	})
	e.rec.JobFinished(string(StatusSuccess), e.elapsed(j))
	e.log.Info("job.run.success", "job_id", j.ID, "attempts", attempts, "standby", standby)

	e.notifier.ReservationSucceeded(context.WithoutCancel(ctx), j.SessionID, res, standby)
}

// fail moves the job to failed. Classified provider failures also notify.
func (e *Engine) fail(j *Job, msg string, notify bool) {
	if !j.finish(StatusFailed, e.now(), nil, msg) {
		return
	}
	attempts, elapsed := j.progress(e.now())

	e.emit(j, v1.TypeJobCompleted, completedFailureData{
		Status:         StatusFailed,
		TotalAttempts:  attempts,
		ElapsedSeconds: elapsed,
		FinalError:     msg,
	})
	e.rec.JobFinished(string(StatusFailed), e.elapsed(j))
	e.log.Warn("job.run.fail", "job_id", j.ID, "attempts", attempts, "err", msg)

	if notify {
		e.notifier.JobFailed(context.Background(), j.SessionID, j.Request.Departure, j.Request.Arrival, msg, attempts)
	}
}

// forwardQueue turns provider queue updates into netfunnel events.
// Queue waits are part of the current attempt and never bump the counter.
func (e *Engine) forwardQueue(ctx context.Context, j *Job, queue <-chan rail.QueueStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-queue:
			if st.Passed {
				e.emit(j, v1.TypeNetfunnelPassed, queueData{Status: "passed", Message: "NetFunnel 통과"})
				continue
			}
			e.emit(j, v1.TypeNetfunnelWaiting, queueData{
				Status:    "waiting",
				WaitCount: st.Waiting,
				Message:   fmt.Sprintf("NetFunnel 대기중... (%d명)", st.Waiting),
			})
		}
	}
}

func (e *Engine) emit(j *Job, typ string, data any) {
	e.events.Broadcast(j.SessionID, typ, j.ID, data)
}

func (e *Engine) elapsed(j *Job) time.Duration {
	_, secs := j.progress(e.now())
	return time.Duration(secs * float64(time.Second))
}
