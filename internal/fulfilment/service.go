package fulfilment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/recon/internal/shared"
)

// DefaultOrderSeries names the series order numbers are issued from.
const DefaultOrderSeries = "SO"

const invoiceStatusCancelled = "CANCELLED"

// NumberIssuer issues document numbers from a named series.
type NumberIssuer interface {
	Next(ctx context.Context, series string) (string, error)
}

// Service provides the ledger operations.
type Service struct {
	repo        Repository
	locker      shared.Locker
	numbers     NumberIssuer
	orderSeries string
	validate    *validator.Validate
	recorder    shared.OperationRecorder
	logger      *slog.Logger
}

// Options configures optional collaborators of the Service.
type Options struct {
	Locker      shared.Locker
	Numbers     NumberIssuer
	OrderSeries string
	Recorder    shared.OperationRecorder
	Logger      *slog.Logger
}

// NewService creates a new service. Without a Locker writers on the same
// order are serialised by the database row lock alone.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		locker:      opts.Locker,
		numbers:     opts.Numbers,
		orderSeries: opts.OrderSeries,
		validate:    shared.NewValidator(),
		recorder:    opts.Recorder,
		logger:      opts.Logger,
	}
	if s.locker == nil {
		s.locker = shared.NoopLocker{}
	}
	if s.orderSeries == "" {
		s.orderSeries = DefaultOrderSeries
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateOrder records a new sales order in Pending state.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (order SalesOrder, err error) {
	defer func() { shared.Observe(s.recorder, "order.create", err, domainErrors...) }()

	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return SalesOrder{}, err
	}
	if !in.Quantity.IsPositive() {
		return SalesOrder{}, shared.Invalid("quantity", "must be greater than zero, got %s", in.Quantity)
	}
	if in.Rate.IsNegative() {
		return SalesOrder{}, shared.Invalid("rate", "must not be negative, got %s", in.Rate)
	}
	if err := shared.CheckScale("quantity", in.Quantity, shared.QuantityPlaces); err != nil {
		return SalesOrder{}, err
	}
	if err := shared.CheckScale("rate", in.Rate, shared.PricePlaces); err != nil {
		return SalesOrder{}, err
	}

	number := in.OrderNumber
	if number == "" {
		if s.numbers == nil {
			return SalesOrder{}, shared.Invalid("order_number", "is required when no numbering series is configured")
		}
		number, err = s.numbers.Next(ctx, s.orderSeries)
		if err != nil {
			return SalesOrder{}, fmt.Errorf("issue order number: %w", err)
		}
	}

	order, err = s.repo.InsertOrder(ctx, SalesOrder{
		OrderNumber: number,
		BuyerID:     in.BuyerID,
		BuyerName:   strings.TrimSpace(in.BuyerName),
		ProductID:   in.ProductID,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		Rate:        in.Rate,
		TotalAmount: in.Quantity.Mul(in.Rate).Round(2),
		Status:      StatusPending,
	})
	if err != nil {
		return SalesOrder{}, fmt.Errorf("insert order %s: %w", number, err)
	}
	s.logger.Info("sales order created", slog.Int64("order", order.ID), slog.String("number", order.OrderNumber))
	return order, nil
}

// Get returns an order with its links and derived quantities.
func (s *Service) Get(ctx context.Context, orderID int64) (OrderDetail, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	links, err := s.repo.ListLinks(ctx, orderID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("list links of order %d: %w", orderID, err)
	}
	linked := sumLinks(links)
	return OrderDetail{
		SalesOrder:      order,
		Links:           links,
		LinkedQuantity:  linked,
		PendingQuantity: Pending(order.Quantity, linked),
	}, nil
}

// PendingQuantity returns ordered − Σ linked for the order.
func (s *Service) PendingQuantity(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	detail, err := s.Get(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return detail.PendingQuantity, nil
}

// LinkInvoiceToOrder records that invoiceID covers quantity of orderID. The
// link is keyed on the pair: repeating a call leaves the ledger unchanged and
// a different quantity replaces the earlier one. The pending check and the
// write happen under the order lock.
func (s *Service) LinkInvoiceToOrder(ctx context.Context, orderID, invoiceID int64, quantity decimal.Decimal) (res LinkResult, err error) {
	defer func() { shared.Observe(s.recorder, "ledger.link", err, domainErrors...) }()

	if orderID <= 0 {
		return LinkResult{}, shared.Invalid("order_id", "must be positive")
	}
	if invoiceID <= 0 {
		return LinkResult{}, shared.Invalid("invoice_id", "must be positive")
	}
	if !quantity.IsPositive() {
		return LinkResult{}, shared.Invalid("quantity", "must be greater than zero, got %s", quantity)
	}
	if err := shared.CheckScale("quantity", quantity, shared.QuantityPlaces); err != nil {
		return LinkResult{}, err
	}

	unlock, err := s.locker.Lock(ctx, shared.OrderLockKey(orderID))
	if err != nil {
		return LinkResult{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoiceStatus, err := tx.InvoiceStatus(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoiceStatus == invoiceStatusCancelled {
			return ErrInvoiceCancelled
		}
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanLink() {
			return ErrOrderCancelled
		}
		others, err := tx.LinkedQuantity(ctx, orderID, invoiceID)
		if err != nil {
			return err
		}
		available := Pending(order.Quantity, others)
		if quantity.GreaterThan(available) {
			return fmt.Errorf("%w: requested %s, pending %s", ErrOverInvoicing, quantity, available)
		}
		if err := tx.UpsertLink(ctx, orderID, invoiceID, quantity); err != nil {
			return err
		}
		linked := others.Add(quantity)
		status := DeriveStatus(order.Quantity, linked)
		if status != order.Status {
			if err := tx.UpdateOrderStatus(ctx, orderID, status); err != nil {
				return err
			}
		}
		res = LinkResult{
			OrderID:         orderID,
			InvoiceID:       invoiceID,
			Quantity:        quantity,
			LinkedQuantity:  linked,
			PendingQuantity: Pending(order.Quantity, linked),
			Status:          status,
		}
		return nil
	})
	if err != nil {
		return LinkResult{}, fmt.Errorf("link invoice %d to order %d: %w", invoiceID, orderID, err)
	}
	s.logger.Info("invoice linked to order",
		slog.Int64("order", orderID),
		slog.Int64("invoice", invoiceID),
		slog.String("quantity", quantity.String()),
		slog.String("status", string(res.Status)))
	return res, nil
}

// UnlinkInvoice removes a recorded invoice reference from the order.
func (s *Service) UnlinkInvoice(ctx context.Context, orderID, invoiceID int64) (res LinkResult, err error) {
	defer func() { shared.Observe(s.recorder, "ledger.unlink", err, domainErrors...) }()

	unlock, err := s.locker.Lock(ctx, shared.OrderLockKey(orderID))
	if err != nil {
		return LinkResult{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		removed, err := tx.DeleteLink(ctx, orderID, invoiceID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrLinkNotFound
		}
		status, linked, err := refreshStatus(ctx, tx, order)
		if err != nil {
			return err
		}
		res = LinkResult{
			OrderID:         orderID,
			InvoiceID:       invoiceID,
			Quantity:        decimal.Zero,
			LinkedQuantity:  linked,
			PendingQuantity: Pending(order.Quantity, linked),
			Status:          status,
		}
		return nil
	})
	if err != nil {
		return LinkResult{}, fmt.Errorf("unlink invoice %d from order %d: %w", invoiceID, orderID, err)
	}
	s.logger.Info("invoice unlinked from order", slog.Int64("order", orderID), slog.Int64("invoice", invoiceID))
	return res, nil
}

// CancelOrder soft-cancels an order that has no invoice links.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (err error) {
	defer func() { shared.Observe(s.recorder, "order.cancel", err, domainErrors...) }()

	unlock, err := s.locker.Lock(ctx, shared.OrderLockKey(orderID))
	if err != nil {
		return fmt.Errorf("lock order %d: %w", orderID, err)
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusCancelled {
			return nil
		}
		n, err := tx.CountLinks(ctx, orderID)
		if err != nil {
			return err
		}
		if n > 0 || !order.Status.CanCancel() {
			return ErrOrderHasLinks
		}
		return tx.UpdateOrderStatus(ctx, orderID, StatusCancelled)
	})
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	s.logger.Info("sales order cancelled", slog.Int64("order", orderID))
	return nil
}

// ReleaseInvoiceLinks drops every link of invoiceID and recomputes the status
// of each affected order inside the caller's transaction. Orders are locked
// in id order.
func ReleaseInvoiceLinks(ctx context.Context, tx TxRepository, invoiceID int64) ([]int64, error) {
	orderIDs, err := tx.OrdersForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	for _, orderID := range orderIDs {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.DeleteLink(ctx, orderID, invoiceID); err != nil {
			return nil, err
		}
		if _, _, err := refreshStatus(ctx, tx, order); err != nil {
			return nil, err
		}
	}
	return orderIDs, nil
}

func refreshStatus(ctx context.Context, tx TxRepository, order SalesOrder) (OrderStatus, decimal.Decimal, error) {
	linked, err := tx.LinkedQuantity(ctx, order.ID, 0)
	if err != nil {
		return "", decimal.Zero, err
	}
	status := order.Status
	if status != StatusCancelled {
		status = DeriveStatus(order.Quantity, linked)
	}
	if status != order.Status {
		if err := tx.UpdateOrderStatus(ctx, order.ID, status); err != nil {
			return "", decimal.Zero, err
		}
	}
	return status, linked, nil
}

func sumLinks(links []Link) decimal.Decimal {
	total := decimal.Zero
	for _, l := range links {
		total = total.Add(l.Quantity)
	}
	return total
}
