package paystack

// ChargeState is the tagged form of the gateway's charge status strings.
// Unknown values are preserved raw so callers can log them instead of
// substring-matching.
type ChargeState string

const (
	ChargeSendOTP    ChargeState = "send_otp"
	ChargePending    ChargeState = "pending"
	ChargeSuccess    ChargeState = "success"
	ChargePayOffline ChargeState = "pay_offline"
	ChargeUnknown    ChargeState = "unknown"
)

func ParseChargeState(raw string) ChargeState {
	switch raw {
	case "send_otp":
		return ChargeSendOTP
	case "pending":
		return ChargePending
	case "success":
		return ChargeSuccess
	case "pay_offline":
		return ChargePayOffline
	default:
		return ChargeUnknown
	}
}

// VerifyState is the tagged form of the transaction verification status.
type VerifyState string

const (
	VerifySuccess   VerifyState = "success"
	VerifyFailed    VerifyState = "failed"
	VerifyAbandoned VerifyState = "abandoned"
	VerifyPending   VerifyState = "pending"
	VerifyReversed  VerifyState = "reversed"
	VerifyUnknown   VerifyState = "unknown"
)

func ParseVerifyState(raw string) VerifyState {
	switch raw {
	case "success":
		return VerifySuccess
	case "failed":
		return VerifyFailed
	case "abandoned":
		return VerifyAbandoned
	// The gateway reports in-flight transactions as either.
	case "pending", "ongoing":
		return VerifyPending
	case "reversed":
		return VerifyReversed
	default:
		return VerifyUnknown
	}
}

type MobileMoney struct {
	Phone    string `json:"phone"`
	Provider string `json:"provider"`
}

type ChargeRequest struct {
	Email    string `json:"email"`
	// Amount is in minor units (pesewas).
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	MobileMoney MobileMoney       `json:"mobile_money"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type chargeEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		Status      string `json:"status"`
		DisplayText string `json:"display_text"`
	} `json:"data"`
}

type ChargeResult struct {
	State       ChargeState
	RawStatus   string
	Reference   string
	Message     string
	DisplayText string
}

type OTPResult struct {
	RawStatus string
	Message   string
}

type verifyEnvelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		GatewayResponse string `json:"gateway_response"`
		Currency        string `json:"currency"`
		Channel         string `json:"channel"`
		PaidAt          string `json:"paid_at"`
	} `json:"data"`
}

type VerifyResult struct {
	State           VerifyState
	RawStatus       string
	AmountMinor     int64
	GatewayResponse string
	Message         string
}

// WebhookEvent is the envelope posted to the webhook endpoint.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventChargeAbandoned = "charge.abandoned"
)
