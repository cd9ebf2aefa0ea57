package phone

import (
	"fmt"
	"strings"

	"tilemate_backend/internal/model"
)

// Normalize reduces a Ghanaian phone number to the local 10-digit form
// ("0" + 9 digits) the gateway expects. Accepts either the international
// 233XXXXXXXXX form or the local form; anything else is rejected.
func Normalize(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch {
	case strings.HasPrefix(digits, "233") && len(digits) == 12:
		return "0" + digits[3:], nil
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return digits, nil
	default:
		return "", fmt.Errorf("invalid phone number: %s", raw)
	}
}

// ParseOperator maps the client-facing operator names onto the stored enum.
// Telecel is the rebranded Vodafone network.
func ParseOperator(raw string) (model.MobileOperator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mtn":
		return model.OperatorMTN, nil
	case "vodafone", "telecel":
		return model.OperatorVodafone, nil
	case "airtel-tigo", "airtel_tigo", "airteltigo":
		return model.OperatorAirtelTigo, nil
	default:
		return "", fmt.Errorf("invalid mobile operator: %s", raw)
	}
}

// ProviderCode returns the gateway's short code for an operator.
func ProviderCode(op model.MobileOperator) string {
	switch op {
	case model.OperatorVodafone:
		return "vod"
	case model.OperatorAirtelTigo:
		return "atl"
	default:
		return "mtn"
	}
}
