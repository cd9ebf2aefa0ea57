package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"tilemate_backend/internal/service"
	"tilemate_backend/pkg/paystack"
	"tilemate_backend/pkg/utils/jwt"
)

type PaymentController struct {
	Payments *service.PaymentService
}

func NewPaymentController(payments *service.PaymentService) *PaymentController {
	return &PaymentController{Payments: payments}
}

// InitiatePayment starts a mobile-money charge and hands the reference back
// to the client for OTP submission or polling.
func (ctrl *PaymentController) InitiatePayment(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(service.InitiatePaymentInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid input",
		})
	}

	user, err := currentUser(ctrl.Payments.DB, claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "User not found",
		})
	}

	result, err := ctrl.Payments.InitiatePayment(c.Context(), user, *input)
	if err != nil {
		return paymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  result.Next,
		"message": result.Message,
		"data": fiber.Map{
			"reference": result.Reference,
		},
	})
}

type otpInput struct {
	Reference string `json:"reference"`
	OTP       string `json:"otp"`
}

func (ctrl *PaymentController) VerifyOTP(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(otpInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid input",
		})
	}

	result, err := ctrl.Payments.SubmitOTP(c.Context(), claims.UserID, input.Reference, input.OTP)
	if err != nil {
		return paymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": result.Message,
		"paystack_response": fiber.Map{
			"status": result.RawStatus,
		},
	})
}

type verifyInput struct {
	Reference string `json:"reference"`
}

func (ctrl *PaymentController) VerifyPayment(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(verifyInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid input",
		})
	}

	outcome, err := ctrl.Payments.VerifyPayment(c.Context(), claims.UserID, input.Reference)
	if err != nil {
		if errors.Is(err, service.ErrAmountMismatch) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "amount_mismatch",
				"message": "Payment amount does not match the initiated amount",
			})
		}
		return paymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  outcome.Status,
		"message": outcome.Message,
		"data": fiber.Map{
			"already_completed": outcome.AlreadyCompleted,
			"activated":         outcome.Activated,
		},
	})
}

// CheckPaymentStatus is the read-only polling endpoint.
func (ctrl *PaymentController) CheckPaymentStatus(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	reference := c.Params("reference")

	record, err := ctrl.Payments.CheckStatus(claims.UserID, reference)
	if err != nil {
		return paymentError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":          record.Status,
		"reference":       record.Reference,
		"amount":          record.AmountMajor,
		"plan_name":       record.PlanNameHint,
		"mobile_operator": record.Operator,
		"completed_at":    record.CompletedAt,
	})
}

// HandleWebhook processes gateway events. Handled and unrecognised events
// are always acknowledged with 200; only unsigned or unparseable requests
// are rejected, so the gateway does not loop on retries.
func (ctrl *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	signature := c.Get("X-Paystack-Signature")
	body := c.Body()

	if err := ctrl.Payments.HandleWebhook(signature, body); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			return c.SendStatus(fiber.StatusUnauthorized)
		case errors.Is(err, service.ErrInvalidPayload):
			return c.SendStatus(fiber.StatusBadRequest)
		default:
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// paymentError maps the service error taxonomy onto HTTP statuses without
// leaking gateway internals.
func paymentError(c *fiber.Ctx, err error) error {
	var gatewayErr *paystack.APIError

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "Payment not found",
		})
	case errors.Is(err, service.ErrGatewayMisconfigured):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Payment service is temporarily unavailable",
		})
	case errors.Is(err, service.ErrGatewayUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"message": "Payment gateway is unreachable, please try again",
		})
	case errors.As(err, &gatewayErr):
		// A gateway 4xx means this particular charge was rejected; the
		// client can correct the details and retry.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "The payment gateway rejected the request, please check the details and try again",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Something went wrong",
		})
	}
}
