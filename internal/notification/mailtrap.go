package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type MailtrapSender struct {
	httpClient *http.Client
	apiURL     string
	apiToken   string
	from       PersonInfo
}

type PersonInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailtrapPayload struct {
	From     PersonInfo   `json:"from"`
	To       []PersonInfo `json:"to"`
	Subject  string       `json:"subject"`
	Text     string       `json:"text,omitempty"`
	Category string       `json:"category,omitempty"`
}

type mailtrapResponse struct {
	Success    bool     `json:"success"`
	MessageIDs []string `json:"message_ids"`
	Errors     []string `json:"errors"`
}

func NewMailtrapSender(apiURL, apiToken, fromAddr, fromName string) *MailtrapSender {
	return &MailtrapSender{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiURL:   apiURL,
		apiToken: apiToken,
		from:     PersonInfo{Email: fromAddr, Name: fromName},
	}
}

func (m *MailtrapSender) Send(ctx context.Context, template TemplateType, data Data) (Result, error) {
	msg, err := Render(template, data)
	if err != nil {
		return Result{Error: err.Error()}, err
	}

	body, err := json.Marshal(mailtrapPayload{
		From:     m.from,
		To:       []PersonInfo{{Email: msg.To, Name: data.CustomerName}},
		Subject:  msg.Subject,
		Text:     msg.Text,
		Category: string(template),
	})
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("marshal mailtrap payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("mailtrap request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("mailtrap error %d: %s", resp.StatusCode, string(raw))
		return Result{Error: err.Error()}, err
	}

	var out mailtrapResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("decode mailtrap response: %w", err)
	}

	result := Result{Success: true}
	if len(out.MessageIDs) > 0 {
		result.MessageID = out.MessageIDs[0]
	}
	return result, nil
}
