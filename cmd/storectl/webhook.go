package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v81/webhook"
)

type sendOptions struct {
	url       string
	secret    string
	eventType string
	eventID   string
	file      string
	intentID  string
	amount    int64
	currency  string
	email     string
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Work with the Stripe webhook endpoint",
	}
	cmd.AddCommand(webhookSendCmd())
	return cmd
}

func webhookSendCmd() *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign and deliver a synthetic Stripe event",
		Long: `Builds a Stripe event envelope, signs it with the webhook secret and
POSTs it to the service. The event object is read from --file, or built
from --intent/--amount/--currency/--email for payment_intent events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "http://localhost:8080/api/stripe/webhook", "Webhook endpoint")
	f.StringVar(&opts.secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "Signing secret (defaults to STRIPE_WEBHOOK_SECRET)")
	f.StringVarP(&opts.eventType, "type", "t", "payment_intent.succeeded", "Event type")
	f.StringVar(&opts.eventID, "id", "", "Event id (random when empty)")
	f.StringVarP(&opts.file, "file", "f", "", "JSON file holding the event data object")
	f.StringVar(&opts.intentID, "intent", "", "Payment intent id (random when empty)")
	f.Int64Var(&opts.amount, "amount", 15000, "Amount in minor units")
	f.StringVar(&opts.currency, "currency", "gbp", "Currency")
	f.StringVar(&opts.email, "email", "", "Receipt email")

	return cmd
}

func runSend(cmd *cobra.Command, opts *sendOptions) error {
	if opts.secret == "" {
		return errors.New("a signing secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
	}

	object, err := eventObject(opts)
	if err != nil {
		return err
	}
	body := buildEvent(opts.eventID, opts.eventType, object)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    opts.secret,
		Timestamp: time.Now(),
	})

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver event: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", resp.Status, respBody)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint answered %d", resp.StatusCode)
	}
	return nil
}

func eventObject(opts *sendOptions) ([]byte, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("read event object: %w", err)
		}
		return data, nil
	}

	if opts.intentID == "" {
		opts.intentID = "pi_" + uuid.NewString()[:8]
	}
	return []byte(fmt.Sprintf(`{"id":%q,"object":"payment_intent","amount":%d,"currency":%q,"receipt_email":%q}`,
		opts.intentID, opts.amount, opts.currency, opts.email)), nil
}

func buildEvent(id, eventType string, object []byte) []byte {
	if id == "" {
		id = "evt_" + uuid.NewString()
	}
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`,
		id, eventType, time.Now().Unix(), object))
}
