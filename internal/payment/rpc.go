// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package payment

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/gate"
	reservdgrpc "github.com/reservd/reservd/internal/grpc"
	"github.com/reservd/reservd/pkg/errutil"
)

// Payment service names.
const (
	ServiceName        = "reservd.payment.v1.Payment"
	CreateChargeMethod = "/" + ServiceName + "/CreateCharge"
)

// DefaultClientTimeout bounds one CreateCharge call.
const DefaultClientTimeout = 5 * time.Second

// maxExactAmount is the largest integer a Struct number holds exactly.
const maxExactAmount = 1 << 53

// Charger creates charges for an identity. *Service implements it.
type Charger interface {
	CreateCharge(ctx context.Context, payer auth.Identity, amountCents int64, currency string) (Charge, error)
}

type paymentHandler interface {
	CreateCharge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Payment service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*paymentHandler)(nil),
	Methods: []grpc.MethodDesc{
		reservdgrpc.StructMethod(CreateChargeMethod, "CreateCharge", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(paymentHandler).CreateCharge(ctx, in)
		}),
	},
	Metadata: "reservd/payment/v1/payment.proto",
}

// Server exposes a Charger over gRPC. It must sit behind the gate
// interceptor, which supplies the caller's identity.
type Server struct {
	charger Charger
	logger  *slog.Logger
}

// NewServer creates a Server.
func NewServer(charger Charger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{charger: charger, logger: logger}
}

// Register adds the Payment service to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&ServiceDesc, s)
}

// CreateCharge handles reservd.payment.v1.Payment/CreateCharge. The request
// carries amount_cents and an optional currency.
func (s *Server) CreateCharge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	payer, ok := gate.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	amount, ok := reservdgrpc.NumberField(in, "amount_cents")
	if !ok || amount != math.Trunc(amount) || math.Abs(amount) > maxExactAmount {
		return nil, status.Error(codes.InvalidArgument, "amount_cents must be an integer")
	}

	charge, err := s.charger.CreateCharge(ctx, payer, int64(amount), reservdgrpc.StringField(in, "currency"))
	if err != nil {
		if apperr.HTTPStatus(err) >= 500 {
			errutil.LogError(ctx, s.logger, "create charge failed", err)
		}
		return nil, apperr.GRPCStatus(err)
	}

	out, err := structpb.NewStruct(map[string]any{
		"id":           charge.ID.String(),
		"invoice_id":   charge.InvoiceID,
		"amount_cents": charge.AmountCents,
		"currency":     charge.Currency,
		"created_at":   reservdgrpc.FormatTime(charge.CreatedAt),
	})
	if err != nil {
		errutil.LogError(ctx, s.logger, "encode charge failed", oops.Wrap(err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// Client calls the Payment service on behalf of the current request.
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientTimeout bounds each CreateCharge call. Non-positive values are
// ignored.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Client over conn.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{conn: conn, timeout: DefaultClientTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the bound on one CreateCharge call.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Charge asks the payment service to charge amountCents to the caller of
// ctx and returns the invoice id. The caller's token, as accepted by the
// gate, is forwarded so the payment service can authenticate the same
// identity. The call is cancelled with ctx and after the client timeout,
// whichever comes first.
func (c *Client) Charge(ctx context.Context, amountCents int64) (string, error) {
	callCtx, cancel := context.WithTimeout(gate.AppendToken(ctx, gate.TokenFrom(ctx)), c.timeout)
	defer cancel()

	out, err := reservdgrpc.InvokeStruct(callCtx, c.conn, CreateChargeMethod, map[string]any{
		"amount_cents": amountCents,
	})
	if err != nil {
		return "", classify(err)
	}
	invoice := reservdgrpc.StringField(out, "invoice_id")
	if invoice == "" {
		return "", oops.Code("PAYMENT_UNAVAILABLE").Errorf("charge response has no invoice id")
	}
	return invoice, nil
}

// classify maps a CreateCharge failure onto the local taxonomy.
func classify(err error) error {
	code := status.Code(err)
	errb := oops.With("grpc_code", code.String())
	switch code {
	case codes.Unauthenticated:
		return errb.Code(apperr.CodeRejected).Wrap(err)
	case codes.InvalidArgument:
		return errb.Code(apperr.CodeInvalidArgument).Errorf("%s", status.Convert(err).Message())
	case codes.DeadlineExceeded:
		return errb.Code("PAYMENT_UNAVAILABLE").With("reason", "timeout").Wrap(err)
	default:
		return errb.Code("PAYMENT_UNAVAILABLE").Wrap(err)
	}
}
