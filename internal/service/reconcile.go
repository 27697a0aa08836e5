package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paytrack-next/internal/constants"
	"github.com/paytrack-next/internal/logger"
	"github.com/paytrack-next/internal/models"
	"github.com/paytrack-next/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReconcileRounds = 3

var errTransitionConflict = errors.New("payment status changed concurrently")

// ReconcileInput 对账输入，RawState 为网关原始状态
type ReconcileInput struct {
	TransactionID string
	RawState      string
	Channel       string
	Amount        *decimal.Decimal
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	Outcome          string
	Payment          *models.Payment
	FromStatus       string
	ToStatus         string
	RawState         string
	AmountMismatch   bool
	NotificationSent bool
}

// Changed 本次对账是否写入了新状态
func (r *ReconcileResult) Changed() bool {
	return r != nil && r.Outcome == constants.ReconcileOutcomeApplied
}

// TransitionEvent 已提交的状态迁移
type TransitionEvent struct {
	Payment *models.Payment
	Order   *models.Order
	From    string
	To      string
	Channel string
}

// TransitionListener 状态迁移提交后的回调，失败不影响对账结果
type TransitionListener interface {
	OnPaymentTransition(ctx context.Context, event TransitionEvent)
}

// ReconcilerOptions 对账引擎选项
type ReconcilerOptions struct {
	BlockOnAmountMismatch bool
}

// Reconciler 支付状态对账引擎，所有状态写入都经过这里
type Reconciler struct {
	db          *gorm.DB
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	eventRepo   repository.PaymentEventRepository
	dispatcher  *Dispatcher
	listeners   []TransitionListener
	options     ReconcilerOptions
	now         func() time.Time
}

// NewReconciler 创建对账引擎
func NewReconciler(db *gorm.DB, paymentRepo repository.PaymentRepository, orderRepo repository.OrderRepository, eventRepo repository.PaymentEventRepository, dispatcher *Dispatcher, options ReconcilerOptions, listeners ...TransitionListener) *Reconciler {
	return &Reconciler{
		db:          db,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		dispatcher:  dispatcher,
		listeners:   listeners,
		options:     options,
		now:         time.Now,
	}
}

// AddListener 注册状态迁移监听
func (r *Reconciler) AddListener(listener TransitionListener) {
	if listener != nil {
		r.listeners = append(r.listeners, listener)
	}
}

// Apply 将网关报告的状态应用到本地支付记录
func (r *Reconciler) Apply(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	input.RawState = strings.TrimSpace(input.RawState)
	if input.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	log := logger.FromContext(ctx,
		"transaction_id", input.TransactionID,
		"channel", input.Channel,
		"raw_state", input.RawState,
	)
	target, recognized := NormalizeGatewayState(input.RawState)

	var (
		result *ReconcileResult
		err    error
	)
	for round := 0; round < maxReconcileRounds; round++ {
		result, err = r.applyOnce(input, target, recognized)
		if !errors.Is(err, errTransitionConflict) {
			break
		}
		log.Debugw("payment_reconcile_conflict_retry", "round", round+1)
	}
	if errors.Is(err, errTransitionConflict) {
		log.Errorw("payment_reconcile_conflict_exhausted", "rounds", maxReconcileRounds)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if result == nil {
		log.Errorw("payment_reconcile_failed", "error", err)
		return nil, err
	}

	if result.Outcome != constants.ReconcileOutcomeApplied {
		r.recordEvent(input, result, log)
	}
	if result.AmountMismatch {
		log.Warnw("payment_amount_mismatch",
			"expected_amount", paymentAmount(result.Payment),
			"reported_amount", input.Amount.StringFixed(2),
			"blocked", r.options.BlockOnAmountMismatch,
		)
	}

	switch result.Outcome {
	case constants.ReconcileOutcomeApplied:
		log.Infow("payment_status_transitioned", "from", result.FromStatus, "to", result.ToStatus)
		postCtx := context.WithoutCancel(ctx)
		r.notifyListeners(postCtx, result, input.Channel)
		if r.dispatcher != nil {
			result.NotificationSent = r.dispatcher.Dispatch(postCtx, result.Payment, result.ToStatus, result.Payment.Amount.Decimal)
		}
	case constants.ReconcileOutcomeIgnored:
		log.Warnw("payment_gateway_state_unrecognized", "status", result.FromStatus)
	case constants.ReconcileOutcomeRejected:
		log.Warnw("payment_status_transition_rejected", "from", result.FromStatus, "to", result.ToStatus)
	case constants.ReconcileOutcomeUnchanged:
		log.Debugw("payment_status_unchanged", "status", result.FromStatus)
	case constants.ReconcileOutcomeNotFound:
		log.Warnw("payment_reconcile_record_not_found")
	}
	return result, err
}

func (r *Reconciler) applyOnce(input ReconcileInput, target string, recognized bool) (*ReconcileResult, error) {
	var (
		result *ReconcileResult
		reason error
	)
	now := r.now()
	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		paymentRepo := r.paymentRepo.WithTx(tx)
		payment, err := paymentRepo.GetByTransactionIDForUpdate(input.TransactionID)
		if err != nil {
			return err
		}
		if payment == nil {
			result = &ReconcileResult{Outcome: constants.ReconcileOutcomeNotFound, RawState: input.RawState, ToStatus: target}
			reason = ErrPaymentNotFound
			return nil
		}
		result = &ReconcileResult{
			Payment:    payment,
			FromStatus: payment.Status,
			ToStatus:   target,
			RawState:   input.RawState,
		}
		if input.Amount != nil && !input.Amount.Equal(payment.Amount.Decimal) {
			result.AmountMismatch = true
			if r.options.BlockOnAmountMismatch {
				result.Outcome = constants.ReconcileOutcomeRejected
				reason = fmt.Errorf("%w: expected %s got %s", ErrAmountMismatch, payment.Amount.String(), input.Amount.StringFixed(2))
				return nil
			}
		}
		if !recognized {
			result.Outcome = constants.ReconcileOutcomeIgnored
			result.ToStatus = payment.Status
			return nil
		}
		if payment.Status == target {
			result.Outcome = constants.ReconcileOutcomeUnchanged
			return nil
		}
		if !CanTransition(payment.Status, target) {
			result.Outcome = constants.ReconcileOutcomeRejected
			reason = fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, payment.Status, target)
			return nil
		}

		ok, err := paymentRepo.TransitionStatus(payment.ID, payment.Status, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionConflict
		}
		order, err := r.orderRepo.WithTx(tx).GetByID(payment.OrderID)
		if err != nil {
			return err
		}
		if order != nil {
			if err := r.orderRepo.WithTx(tx).UpdatePaymentStatus(order.ID, target); err != nil {
				return err
			}
			order.PaymentStatus = target
		}
		payment.Status = target
		payment.UpdatedAt = now
		if target == constants.PaymentStatusCompleted {
			paidAt := now
			payment.PaymentDate = &paidAt
		}
		payment.Order = order
		result.Outcome = constants.ReconcileOutcomeApplied
		return r.eventRepo.WithTx(tx).Create(buildPaymentEvent(input, result))
	})
	if txErr != nil {
		return nil, txErr
	}
	return result, reason
}

func (r *Reconciler) recordEvent(input ReconcileInput, result *ReconcileResult, log *zap.SugaredLogger) {
	if r.eventRepo == nil {
		return
	}
	if err := r.eventRepo.Create(buildPaymentEvent(input, result)); err != nil {
		log.Warnw("payment_event_record_failed", "outcome", result.Outcome, "error", err)
	}
}

func (r *Reconciler) notifyListeners(ctx context.Context, result *ReconcileResult, channel string) {
	event := TransitionEvent{
		Payment: result.Payment,
		Order:   result.Payment.Order,
		From:    result.FromStatus,
		To:      result.ToStatus,
		Channel: channel,
	}
	for _, listener := range r.listeners {
		listener.OnPaymentTransition(ctx, event)
	}
}

func buildPaymentEvent(input ReconcileInput, result *ReconcileResult) *models.PaymentEvent {
	event := &models.PaymentEvent{
		TransactionID:  input.TransactionID,
		Channel:        input.Channel,
		RawState:       input.RawState,
		FromStatus:     result.FromStatus,
		ToStatus:       result.ToStatus,
		Outcome:        result.Outcome,
		AmountMismatch: result.AmountMismatch,
	}
	if result.Payment != nil {
		event.PaymentID = result.Payment.ID
	}
	if input.Amount != nil {
		amount := models.NewMoneyFromDecimal(*input.Amount)
		event.Amount = &amount
	}
	return event
}

func paymentAmount(payment *models.Payment) string {
	if payment == nil {
		return ""
	}
	return payment.Amount.String()
}
