// pkg/sms/sms.go
package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service sends transactional SMS through an Arkesel-style HTTP API.
// A nil *Service is safe to call; sends become no-ops so payment flows
// never depend on SMS configuration.
type Service struct {
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
}

type smsPayload struct {
	Sender     string   `json:"sender"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

func NewService(endpoint, apiKey, sender string) *Service {
	if apiKey == "" {
		return nil
	}
	return &Service{
		endpoint: endpoint,
		apiKey:   apiKey,
		sender:   sender,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Service) Send(phone, message string) error {
	if s == nil {
		return nil
	}

	payload := smsPayload{
		Sender:     s.sender,
		Message:    message,
		Recipients: []string{phone},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sms api returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

func (s *Service) SendPaymentConfirmation(phone, planName string, amount float64) error {
	msg := fmt.Sprintf("Your TileMate payment of GHS %.2f was successful. Plan: %s. Happy tiling!", amount, planName)
	return s.Send(phone, msg)
}

func (s *Service) SendExpiryWarning(phone, planName string, daysLeft int) error {
	msg := fmt.Sprintf("Your TileMate %s plan expires in %d day(s). Renew in the app to keep your projects going.", planName, daysLeft)
	return s.Send(phone, msg)
}
