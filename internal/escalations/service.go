package escalations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/internal/ledger"
	"github.com/angelmondragon/community-market-backend/internal/orders"
	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/outbox"
	"github.com/angelmondragon/community-market-backend/pkg/outbox/payloads"
)

const (
	maxReasonLength  = 2000
	maxMessageLength = 1000

	openEscalationIndex = "ux_escalations_open_order"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderTransitioner runs versioned order mutations inside a caller's transaction.
type OrderTransitioner interface {
	TransitionTx(ctx context.Context, tx *gorm.DB, t orders.Transition) (*orders.TransitionResult, error)
}

// LedgerAppender credits refunds to the buyer.
type LedgerAppender interface {
	Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.PointLedgerEntry, error)
}

// Service manages the dispute lifecycle of an order.
type Service interface {
	Dispute(ctx context.Context, input DisputeInput) (*DisputeResult, error)
	MakeRefundOffer(ctx context.Context, input RefundOfferInput) (*models.RefundOffer, error)
	AcceptRefundOffer(ctx context.Context, input AcceptOfferInput) (*AcceptOfferResult, error)
	RejectRefundOffer(ctx context.Context, input RejectOfferInput) error
	Escalate(ctx context.Context, input EscalateInput) (*orders.MutationResult, error)
	Resolve(ctx context.Context, input ResolveInput) (*orders.MutationResult, error)
	Get(ctx context.Context, orderID, actorID uuid.UUID) (*DisputeView, error)
}

type service struct {
	repo        Repository
	orders      orders.Repository
	transitions OrderTransitioner
	ledger      LedgerAppender
	tx          txRunner
	outbox      outbox.Emitter
}

// NewService wires the escalation manager.
func NewService(repo Repository, orderRepo orders.Repository, transitions OrderTransitioner, ledgerSvc LedgerAppender, tx txRunner, emitter outbox.Emitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escalations repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if transitions == nil {
		return nil, fmt.Errorf("order transitioner required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger appender required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:        repo,
		orders:      orderRepo,
		transitions: transitions,
		ledger:      ledgerSvc,
		tx:          tx,
		outbox:      emitter,
	}, nil
}

func (s *service) Dispute(ctx context.Context, input DisputeInput) (*DisputeResult, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("dispute reason exceeds %d characters", maxReasonLength))
	}

	var result *DisputeResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		transition, err := s.transitions.TransitionTx(ctx, tx, orders.Transition{
			OrderID:         input.OrderID,
			ActorID:         input.ActorID,
			Action:          enums.OrderActionDispute,
			ExpectedVersion: input.ExpectedVersion,
		})
		if err != nil {
			return err
		}
		if _, err := repo.FindOpenByOrder(ctx, input.OrderID); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already has an open dispute")
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open dispute")
		}

		escalation := &models.Escalation{
			OrderID:             input.OrderID,
			InitiatorID:         input.ActorID,
			Reason:              reason,
			DisputeProofMediaID: input.ProofMediaID,
			Status:              enums.EscalationStatusOpen,
		}
		if err := repo.CreateEscalation(ctx, escalation); err != nil {
			if db.IsUniqueViolation(err, openEscalationIndex) {
				return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order already has an open dispute")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create escalation")
		}

		order := transition.Order
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateEscalation,
			AggregateID:   escalation.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: string(transition.Role)},
			Data: payloads.DisputeOpenedEvent{
				EscalationID: escalation.ID,
				OrderID:      order.ID,
				InitiatorID:  input.ActorID,
				SellerID:     order.SellerID,
				Reason:       reason,
			},
		}); err != nil {
			return err
		}
		result = &DisputeResult{EscalationID: escalation.ID, NewVersion: order.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) MakeRefundOffer(ctx context.Context, input RefundOfferInput) (*models.RefundOffer, error) {
	message := strings.TrimSpace(input.Message)
	if len(message) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("offer message exceeds %d characters", maxMessageLength))
	}

	var offer *models.RefundOffer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(order, input.ActorID, enums.OrderActionMakeOffer) {
			return forbidden(enums.OrderActionMakeOffer, order.Status)
		}
		if input.Amount <= 0 || input.Amount > order.TotalPrice {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive and no more than the order total").
				WithDetails(map[string]any{"min": 1, "max": order.TotalPrice})
		}

		repo := s.repo.WithTx(tx)
		escalation, err := s.openEscalation(ctx, repo, order.ID)
		if err != nil {
			return err
		}

		offer = &models.RefundOffer{
			EscalationID: escalation.ID,
			SellerID:     input.ActorID,
			Amount:       input.Amount,
			Message:      message,
			Status:       enums.RefundOfferStatusPending,
		}
		if err := repo.CreateOffer(ctx, offer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund offer")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundOfferCreated,
			AggregateType: enums.AggregateEscalation,
			AggregateID:   escalation.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.OrderRoleSeller)},
			Data: payloads.RefundOfferCreatedEvent{
				OfferID:      offer.ID,
				EscalationID: escalation.ID,
				OrderID:      order.ID,
				SellerID:     order.SellerID,
				BuyerID:      order.BuyerID,
				Amount:       offer.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// AcceptRefundOffer settles the dispute in one transaction: the offer, its
// siblings, the refund credit, the escalation and the order move together.
func (s *service) AcceptRefundOffer(ctx context.Context, input AcceptOfferInput) (*AcceptOfferResult, error) {
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}

	var result *AcceptOfferResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(order, input.ActorID, enums.OrderActionAcceptOffer) {
			return forbidden(enums.OrderActionAcceptOffer, order.Status)
		}

		repo := s.repo.WithTx(tx)
		escalation, err := s.openEscalation(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		offer, err := s.loadOffer(ctx, repo, input.OfferID)
		if err != nil {
			return err
		}
		if offer.EscalationID != escalation.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "refund offer not found for this order")
		}
		if offer.Status != enums.RefundOfferStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("refund offer is %s", offer.Status))
		}
		if offer.Amount > order.TotalPrice {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund offer exceeds the order total")
		}

		accepted, err := repo.TransitionOffer(ctx, offer.ID, enums.RefundOfferStatusPending, enums.RefundOfferStatusAccepted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accept refund offer")
		}
		if !accepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund offer is no longer pending")
		}
		if _, err := repo.WithdrawPendingOffers(ctx, escalation.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdraw sibling offers")
		}

		offerID := offer.ID
		entry, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
			UserID:      order.BuyerID,
			Type:        enums.PointLedgerRefund,
			Amount:      offer.Amount,
			ReferenceID: &offerID,
		})
		if err != nil {
			return err
		}

		if err := s.closeEscalation(ctx, repo, escalation.ID, enums.EscalationResolutionRefundAccepted, &offerID); err != nil {
			return err
		}

		transition, err := s.transitions.TransitionTx(ctx, tx, orders.Transition{
			OrderID:         order.ID,
			ActorID:         input.ActorID,
			Action:          enums.OrderActionAcceptOffer,
			ExpectedVersion: input.ExpectedVersion,
		})
		if err != nil {
			return err
		}

		if err := s.emitResolved(ctx, tx, input.ActorID, transition, escalation.ID, enums.EscalationResolutionRefundAccepted, &offerID, offer.Amount); err != nil {
			return err
		}

		result = &AcceptOfferResult{
			OrderID:       order.ID,
			NewVersion:    transition.Order.Version,
			RefundAmount:  offer.Amount,
			NewBalance:    entry.BalanceAfter,
			LedgerEntryID: entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RejectRefundOffer(ctx context.Context, input RejectOfferInput) error {
	if input.OfferID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offer, err := s.loadOffer(ctx, repo, input.OfferID)
		if err != nil {
			return err
		}
		escalation, err := repo.FindEscalation(ctx, offer.EscalationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load escalation")
		}
		order, err := s.loadOrder(ctx, tx, escalation.OrderID)
		if err != nil {
			return err
		}
		if order.RoleOf(input.ActorID) != enums.OrderRoleBuyer {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer may reject a refund offer")
		}

		rejected, err := repo.TransitionOffer(ctx, offer.ID, enums.RefundOfferStatusPending, enums.RefundOfferStatusRejected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject refund offer")
		}
		if !rejected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("refund offer is %s", offer.Status))
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundOfferRejected,
			AggregateType: enums.AggregateEscalation,
			AggregateID:   escalation.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.OrderRoleBuyer)},
			Data: payloads.RefundOfferRejectedEvent{
				OfferID:      offer.ID,
				EscalationID: escalation.ID,
				OrderID:      order.ID,
				SellerID:     offer.SellerID,
			},
		})
	})
}

func (s *service) Escalate(ctx context.Context, input EscalateInput) (*orders.MutationResult, error) {
	var result *orders.MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		transition, err := s.transitions.TransitionTx(ctx, tx, orders.Transition{
			OrderID:         input.OrderID,
			ActorID:         input.ActorID,
			Action:          enums.OrderActionEscalate,
			ExpectedVersion: input.ExpectedVersion,
		})
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		escalation, err := s.openEscalation(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if _, err := repo.UpdateOpenEscalation(ctx, escalation.ID, map[string]any{"escalated_at": time.Now().UTC()}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamp escalation")
		}
		result = orders.ResultFrom(transition.Order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*orders.MutationResult, error) {
	if _, err := enums.ParseDisputeDisposition(string(input.Disposition)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "disposition must be completed or cancelled")
	}

	var result *orders.MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		transition, err := s.transitions.TransitionTx(ctx, tx, orders.Transition{
			OrderID:         input.OrderID,
			ActorID:         input.ActorID,
			Action:          enums.OrderActionResolve,
			ExpectedVersion: input.ExpectedVersion,
			TargetStatus:    input.Disposition.OrderStatus(),
		})
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		escalation, err := s.openEscalation(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if _, err := repo.WithdrawPendingOffers(ctx, escalation.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdraw pending offers")
		}
		if err := s.closeEscalation(ctx, repo, escalation.ID, enums.EscalationResolutionManual, nil); err != nil {
			return err
		}
		if err := s.emitResolved(ctx, tx, input.ActorID, transition, escalation.ID, enums.EscalationResolutionManual, nil, 0); err != nil {
			return err
		}
		result = orders.ResultFrom(transition.Order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, orderID, actorID uuid.UUID) (*DisputeView, error) {
	order, err := s.loadOrder(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if order.RoleOf(actorID) == enums.OrderRoleNone {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	}
	escalation, err := s.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no dispute")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load escalation")
	}
	offers, err := s.repo.ListOffers(ctx, escalation.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list refund offers")
	}
	return &DisputeView{Escalation: escalation, Offers: offers}, nil
}

func (s *service) closeEscalation(ctx context.Context, repo Repository, id uuid.UUID, resolution enums.EscalationResolution, offerID *uuid.UUID) error {
	updates := map[string]any{
		"status":          enums.EscalationStatusResolved,
		"resolution_type": resolution,
		"resolved_at":     time.Now().UTC(),
	}
	if offerID != nil {
		updates["accepted_refund_offer_id"] = *offerID
	}
	closed, err := repo.UpdateOpenEscalation(ctx, id, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve escalation")
	}
	if !closed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute already resolved")
	}
	return nil
}

func (s *service) emitResolved(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, transition *orders.TransitionResult, escalationID uuid.UUID, resolution enums.EscalationResolution, offerID *uuid.UUID, amount int64) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDisputeResolved,
		AggregateType: enums.AggregateEscalation,
		AggregateID:   escalationID,
		Actor:         &outbox.ActorRef{UserID: actorID, Role: string(transition.Role)},
		Data: payloads.DisputeResolvedEvent{
			EscalationID:    escalationID,
			OrderID:         transition.Order.ID,
			Resolution:      resolution,
			OrderStatus:     transition.Order.Status,
			AcceptedOfferID: offerID,
			RefundAmount:    amount,
		},
	})
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) openEscalation(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Escalation, error) {
	escalation, err := repo.FindOpenByOrder(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no open dispute")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open dispute")
	}
	return escalation, nil
}

func (s *service) loadOffer(ctx context.Context, repo Repository, offerID uuid.UUID) (*models.RefundOffer, error) {
	offer, err := repo.FindOffer(ctx, offerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund offer")
	}
	return offer, nil
}

func forbidden(action enums.OrderAction, status enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("action %s not permitted while order is %s", action, status)).
		WithDetails(map[string]any{"status": status, "action": action})
}
