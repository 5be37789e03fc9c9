package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/LerianStudio/lib-custody/custody"
	"github.com/LerianStudio/lib-custody/custody/ledger"
	"github.com/LerianStudio/lib-custody/custody/log"
	"github.com/LerianStudio/lib-custody/custody/units"
	"github.com/LerianStudio/lib-custody/custody/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gofiber/fiber/v2"
)

var (
	// ErrNilLedger is returned when an app is built without a ledger.
	ErrNilLedger = errors.New("ledger is required")
	// ErrNilValidator is returned when an app is built without a validator.
	ErrNilValidator = errors.New("validator is required")
)

// Config carries the audit server's collaborators.
type Config struct {
	// Ledger and Validator are the deployed pair under audit. Required.
	Ledger    *ledger.Ledger
	Validator *validator.Validator

	// HealthCheck, when set, gates GET /health beyond process liveness.
	HealthCheck func(ctx context.Context) error

	// Logger records request failures. Nil degrades to NopLogger.
	Logger log.Logger
}

// Server holds the handlers behind the audit routes.
type Server struct {
	ledger      *ledger.Ledger
	validator   *validator.Validator
	healthCheck func(ctx context.Context) error
	logger      log.Logger
}

// NewApp assembles the Fiber app with all audit routes registered.
func NewApp(cfg Config) (*fiber.App, error) {
	if cfg.Ledger == nil {
		return nil, ErrNilLedger
	}

	if cfg.Validator == nil {
		return nil, ErrNilValidator
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &log.NopLogger{}
	}

	s := &Server{
		ledger:      cfg.Ledger,
		validator:   cfg.Validator,
		healthCheck: cfg.HealthCheck,
		logger:      logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "custody-audit",
		DisableStartupMessage: true,
	})

	app.Get("/health", s.health)
	app.Get("/v1/ledger", s.ledgerState)
	app.Post("/v1/authorizations/digest", s.digest)
	app.Post("/v1/authorizations/preview", s.preview)

	return app, nil
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.healthCheck != nil {
		if err := s.healthCheck(c.UserContext()); err != nil {
			s.logger.Log(c.UserContext(), log.LevelWarn, "health check failed", log.Err(err))

			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"reason": err.Error(),
			})
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "available"})
}

type ledgerResponse struct {
	LedgerID         custody.Identity `json:"ledgerId"`
	ValidatorID      custody.Identity `json:"validatorId"`
	NetworkID        uint64           `json:"networkId"`
	AccountedBalance string           `json:"accountedBalance"`
	DisplayBalance   string           `json:"displayBalance"`
}

func (s *Server) ledgerState(c *fiber.Ctx) error {
	balance := s.ledger.AccountedBalance()

	display, err := units.Format(balance)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, err)
	}

	return c.Status(http.StatusOK).JSON(ledgerResponse{
		LedgerID:         s.ledger.Identity(),
		ValidatorID:      s.validator.Identity(),
		NetworkID:        s.validator.Domain().NetworkID,
		AccountedBalance: balance.String(),
		DisplayBalance:   display,
	})
}

// approvalRequest is the wire form of an approval message: identities and the
// nonce in hex, the amount as a base-unit decimal string.
type approvalRequest struct {
	LedgerID  string `json:"ledgerId"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Nonce     string `json:"nonce"`
}

type previewRequest struct {
	approvalRequest
	Signature string `json:"signature"`
}

func (s *Server) digest(c *fiber.Ctx) error {
	var req approvalRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest,
			custody.NewError(custody.ErrorInvalidAmount, "body", "request body is not valid JSON"))
	}

	ledgerID, recipient, amount, nonce, err := req.parse()
	if err != nil {
		return respondError(c, http.StatusBadRequest, err)
	}

	id, err := s.validator.AuthorizationID(ledgerID, recipient, amount, nonce)
	if err != nil {
		return respondError(c, http.StatusBadRequest, err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"authorizationId": id})
}

func (s *Server) preview(c *fiber.Ctx) error {
	var req previewRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest,
			custody.NewError(custody.ErrorInvalidAmount, "body", "request body is not valid JSON"))
	}

	ledgerID, recipient, amount, nonce, err := req.approvalRequest.parse()
	if err != nil {
		return respondError(c, http.StatusBadRequest, err)
	}

	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		return respondError(c, http.StatusBadRequest,
			custody.NewError(custody.ErrorInvalidSignature, "signature", "signature is not valid hex"))
	}

	preview, err := s.validator.Preview(c.UserContext(), ledgerID, recipient, amount, nonce, signature)
	if err != nil {
		var storeErr custody.StoreError
		if errors.As(err, &storeErr) {
			s.logger.Log(c.UserContext(), log.LevelError, "preview store failure", log.Err(err))

			return respondError(c, http.StatusServiceUnavailable, err)
		}

		return respondError(c, http.StatusBadRequest, err)
	}

	return c.Status(http.StatusOK).JSON(preview)
}

func (r approvalRequest) parse() (custody.Identity, custody.Identity, *big.Int, custody.Nonce, error) {
	ledgerID, err := parseIdentity("ledgerId", r.LedgerID)
	if err != nil {
		return custody.Identity{}, custody.Identity{}, nil, custody.Nonce{}, err
	}

	recipient, err := parseIdentity("recipient", r.Recipient)
	if err != nil {
		return custody.Identity{}, custody.Identity{}, nil, custody.Nonce{}, err
	}

	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return custody.Identity{}, custody.Identity{}, nil, custody.Nonce{},
			custody.NewError(custody.ErrorInvalidAmount, "amount",
				"amount must be a non-negative base-unit integer")
	}

	nonce, err := custody.ParseNonce(r.Nonce)
	if err != nil {
		return custody.Identity{}, custody.Identity{}, nil, custody.Nonce{}, err
	}

	return ledgerID, recipient, amount, nonce, nil
}

func parseIdentity(field, s string) (custody.Identity, error) {
	if !common.IsHexAddress(s) {
		return custody.Identity{}, custody.NewError(custody.ErrorInvalidIdentity, field,
			"value is not a hex identity")
	}

	return common.HexToAddress(s), nil
}

func respondError(c *fiber.Ctx, status int, err error) error {
	var domainErr custody.Error
	if errors.As(err, &domainErr) {
		return c.Status(status).JSON(domainErr)
	}

	return c.Status(status).JSON(fiber.Map{"message": err.Error()})
}
