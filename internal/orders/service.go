package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/pkg/db"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/outbox"
	"github.com/angelmondragon/community-market-backend/pkg/outbox/payloads"
)

const (
	minRating = 1
	maxRating = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BalanceReader reads the buyer's points inside the caller's transaction.
type BalanceReader interface {
	BalanceTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

// Service is the order transition engine.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error)
	Accept(ctx context.Context, input ActionInput) (*MutationResult, error)
	Reject(ctx context.Context, input ActionInput) (*MutationResult, error)
	Modify(ctx context.Context, input ModifyOrderInput) (*MutationResult, error)
	Cancel(ctx context.Context, input ActionInput) (*MutationResult, error)
	SuggestDate(ctx context.Context, input SuggestDateInput) (*MutationResult, error)
	SuggestQuantity(ctx context.Context, input SuggestQuantityInput) (*MutationResult, error)
	MarkDelivered(ctx context.Context, input MarkDeliveredInput) (*MutationResult, error)
	ConfirmDelivery(ctx context.Context, input ActionInput) (*MutationResult, error)
	Rate(ctx context.Context, input RateOrderInput) error
	TransitionTx(ctx context.Context, tx *gorm.DB, t Transition) (*TransitionResult, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	balances BalanceReader
}

// NewService builds the order transition engine with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, balances BalanceReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance reader required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   emitter,
		balances: balances,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if input.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and seller must differ")
	}
	if strings.TrimSpace(input.Product) == "" || strings.TrimSpace(input.Category) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category and product are required")
	}
	if input.Quantity <= 0 || input.PointsPerUnit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity and points per unit must be positive")
	}
	total, err := totalPrice(input.Quantity, input.PointsPerUnit)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		BuyerID:              input.BuyerID,
		SellerID:             input.SellerID,
		ConversationID:       input.ConversationID,
		Category:             strings.TrimSpace(input.Category),
		Product:              strings.TrimSpace(input.Product),
		Quantity:             input.Quantity,
		PointsPerUnit:        input.PointsPerUnit,
		TotalPrice:           total,
		DeliveryDate:         utcPtr(input.DeliveryDate),
		DeliveryAddress:      input.DeliveryAddress,
		DeliveryInstructions: input.DeliveryInstructions,
		Status:               enums.OrderStatusPending,
		Version:              1,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ensureBalance(ctx, tx, input.BuyerID, total); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.OrderRoleBuyer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				SellerID:   order.SellerID,
				TotalPrice: order.TotalPrice,
				Status:     order.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID, actorID uuid.UUID) (*OrderView, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	role := order.RoleOf(actorID)
	if role == enums.OrderRoleNone {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	}
	return &OrderView{
		Order:            order,
		Role:             role,
		AvailableActions: AvailableActions(order, actorID),
	}, nil
}

func (s *service) Accept(ctx context.Context, input ActionInput) (*MutationResult, error) {
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionAccept,
		ExpectedVersion: input.ExpectedVersion,
	})
}

func (s *service) Reject(ctx context.Context, input ActionInput) (*MutationResult, error) {
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionReject,
		ExpectedVersion: input.ExpectedVersion,
	})
}

func (s *service) Modify(ctx context.Context, input ModifyOrderInput) (*MutationResult, error) {
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no changes supplied")
	}
	if input.Quantity != nil && *input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.PointsPerUnit != nil && *input.PointsPerUnit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points per unit must be positive")
	}

	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionModify,
		ExpectedVersion: input.ExpectedVersion,
		Apply: func(tx *gorm.DB, order *models.Order) (map[string]any, error) {
			updates := map[string]any{}
			quantity, perUnit := order.Quantity, order.PointsPerUnit
			if input.Quantity != nil {
				quantity = *input.Quantity
				updates["quantity"] = quantity
			}
			if input.PointsPerUnit != nil {
				perUnit = *input.PointsPerUnit
				updates["points_per_unit"] = perUnit
			}
			if input.DeliveryDate != nil {
				updates["delivery_date"] = input.DeliveryDate.UTC()
			}
			if input.DeliveryAddress != nil {
				updates["delivery_address"] = *input.DeliveryAddress
			}
			if input.DeliveryInstructions != nil {
				updates["delivery_instructions"] = *input.DeliveryInstructions
			}

			total, err := totalPrice(quantity, perUnit)
			if err != nil {
				return nil, err
			}
			if total != order.TotalPrice {
				if err := s.ensureBalance(ctx, tx, order.BuyerID, total); err != nil {
					return nil, err
				}
				updates["total_price"] = total
			}
			return updates, nil
		},
	})
}

func (s *service) Cancel(ctx context.Context, input ActionInput) (*MutationResult, error) {
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionCancel,
		ExpectedVersion: input.ExpectedVersion,
	})
}

func (s *service) SuggestDate(ctx context.Context, input SuggestDateInput) (*MutationResult, error) {
	if input.DeliveryDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery date is required")
	}
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionSuggestDate,
		ExpectedVersion: input.ExpectedVersion,
		Apply: func(_ *gorm.DB, _ *models.Order) (map[string]any, error) {
			return map[string]any{"delivery_date": input.DeliveryDate.UTC()}, nil
		},
	})
}

func (s *service) SuggestQuantity(ctx context.Context, input SuggestQuantityInput) (*MutationResult, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionSuggestQuantity,
		ExpectedVersion: input.ExpectedVersion,
		Apply: func(_ *gorm.DB, order *models.Order) (map[string]any, error) {
			total, err := totalPrice(input.Quantity, order.PointsPerUnit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"quantity": input.Quantity, "total_price": total}, nil
		},
	})
}

func (s *service) MarkDelivered(ctx context.Context, input MarkDeliveredInput) (*MutationResult, error) {
	if input.ProofMediaID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof of delivery is required")
	}
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionMarkDelivered,
		ExpectedVersion: input.ExpectedVersion,
		Apply: func(_ *gorm.DB, _ *models.Order) (map[string]any, error) {
			return map[string]any{"delivery_proof_media_id": input.ProofMediaID}, nil
		},
	})
}

func (s *service) ConfirmDelivery(ctx context.Context, input ActionInput) (*MutationResult, error) {
	return s.run(ctx, Transition{
		OrderID:         input.OrderID,
		ActorID:         input.ActorID,
		Action:          enums.OrderActionConfirmDelivery,
		ExpectedVersion: input.ExpectedVersion,
	})
}

func (s *service) Rate(ctx context.Context, input RateOrderInput) error {
	if input.Rating < minRating || input.Rating > maxRating {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order, input.ActorID, enums.OrderActionRate) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "rating not permitted for this order")
		}
		role := order.RoleOf(input.ActorID)
		written, err := repo.SetRating(ctx, order.ID, role, input.Rating, input.Feedback)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record rating")
		}
		if !written {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already rated")
		}
		return nil
	})
}

func (s *service) run(ctx context.Context, t Transition) (*MutationResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.TransitionTx(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ResultFrom(result.Order), nil
}

// TransitionTx applies one versioned mutation inside tx: load, policy check,
// version check, compare-and-swap, then the status-change event.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, t Transition) (*TransitionResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order transition requires a transaction")
	}
	if t.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if t.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if t.ExpectedVersion == nil && RequiresExpectedVersion(t.Action) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected_version is required")
	}
	target := t.TargetStatus
	if target == "" {
		target = targetStatus[t.Action]
	}
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no target status for action %q", t.Action))
	}

	repo := s.repo.WithTx(tx)
	order, err := s.load(ctx, repo, t.OrderID)
	if err != nil {
		return nil, err
	}
	stale := t.ExpectedVersion != nil && *t.ExpectedVersion != order.Version

	if !CanTransition(order, t.ActorID, t.Action) {
		// a lost race for the same transition reads as a version conflict
		if stale && order.Status == target {
			return nil, versionConflict(*t.ExpectedVersion, order.Version)
		}
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("action %s not permitted while order is %s", t.Action, order.Status)).
			WithDetails(map[string]any{"status": order.Status, "action": t.Action})
	}
	if stale {
		return nil, versionConflict(*t.ExpectedVersion, order.Version)
	}

	updates := map[string]any{}
	if t.Apply != nil {
		extra, err := t.Apply(tx, order)
		if err != nil {
			return nil, err
		}
		for column, value := range extra {
			updates[column] = value
		}
	}
	updates["status"] = target

	swapped, err := repo.CompareAndSwap(ctx, order.ID, order.Version, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
	}
	if !swapped {
		return nil, versionConflict(order.Version, order.Version+1)
	}

	fromStatus := order.Status
	updated, err := s.load(ctx, repo, order.ID)
	if err != nil {
		return nil, err
	}
	role := updated.RoleOf(t.ActorID)

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   updated.ID,
		Actor:         &outbox.ActorRef{UserID: t.ActorID, Role: string(role)},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    updated.ID,
			BuyerID:    updated.BuyerID,
			SellerID:   updated.SellerID,
			ActorID:    t.ActorID,
			Action:     t.Action,
			FromStatus: fromStatus,
			ToStatus:   updated.Status,
			Version:    updated.Version,
		},
	}); err != nil {
		return nil, err
	}

	return &TransitionResult{Order: updated, FromStatus: fromStatus, Role: role}, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) ensureBalance(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, required int64) error {
	balance, err := s.balances.BalanceTx(ctx, tx, buyerID)
	if err != nil {
		return err
	}
	if balance < required {
		return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient point balance").
			WithDetails(map[string]any{"balance": balance, "required": required})
	}
	return nil
}

func versionConflict(expected, current int64) error {
	return pkgerrors.New(pkgerrors.CodeVersionConflict, "order was modified by another request").
		WithDetails(map[string]any{"expectedVersion": expected, "currentVersion": current})
}

func totalPrice(quantity, perUnit int64) (int64, error) {
	total := quantity * perUnit
	if quantity != 0 && total/quantity != perUnit {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order total is out of range")
	}
	return total, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
