package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type emailTemplate struct {
	subject string
	body    string
}

var funcs = template.FuncMap{
	"money": FormatAmount,
	"date":  FormatDate,
	"upper": strings.ToUpper,
}

var templates = map[TemplateType]emailTemplate{
	OrderConfirmation: {
		subject: "Your order is confirmed",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Thank you for your order. We have received your payment of {{money .Amount .Currency}}.
Order reference: {{.OrderID}}

We will email you again as soon as your order ships.`,
	},
	PaymentFailed: {
		subject: "We could not process your payment",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Unfortunately your payment of {{money .Amount .Currency}} did not go through{{with .Reason}} ({{.}}){{end}}.
No money has been taken. Please try again or use a different card.`,
	},
	ShippingNotification: {
		subject: "Your order is on its way",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Good news: order {{.OrderID}} has shipped.
Tracking number: {{.TrackingNumber}}
Estimated delivery: {{date .EstimatedDelivery}}`,
	},
	AdminDisputeAlert: {
		subject: "Dispute opened: {{.DisputeID}}",
		body: `A customer opened a dispute.

Dispute: {{.DisputeID}}
Amount: {{money .Amount .Currency}}
Reason: {{.Reason}}
Status: {{.Status}}
Payment intent: {{.PaymentIntentID}}
Order: {{with .OrderID}}{{.}}{{else}}not found{{end}}
Payer: {{with .Extra.payerEmail}}{{.}}{{else}}unknown{{end}}`,
	},
	SubscriptionWelcome: {
		subject: "Welcome to the membership",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Your membership ({{.SubscriptionID}}) is now {{.Status}}. Welcome aboard.`,
	},
	SubscriptionUpdated: {
		subject: "Your membership was updated",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Your membership ({{.SubscriptionID}}) was updated. Current status: {{.Status}}.`,
	},
	SubscriptionCancelled: {
		subject: "Your membership was cancelled",
		body: `Hi{{with .CustomerName}} {{.}}{{end}},

Your membership ({{.SubscriptionID}}) has been cancelled. We are sorry to see you go.`,
	},
	InvoicePaid: {
		subject: "Receipt for invoice {{.InvoiceID}}",
		body: `Thanks for your payment of {{money .Amount .Currency}} for invoice {{.InvoiceID}}.
{{with .InvoiceURL}}View it online: {{.}}{{end}}`,
	},
	InvoicePaymentFailed: {
		subject: "Payment failed for invoice {{.InvoiceID}}",
		body: `We could not collect {{money .Amount .Currency}} for invoice {{.InvoiceID}}.
Payment is due by {{date .DueDate}}.
{{with .InvoiceURL}}Update your payment details: {{.}}{{end}}`,
	},
}

var compiled = func() map[TemplateType][2]*template.Template {
	out := make(map[TemplateType][2]*template.Template, len(templates))
	for name, t := range templates {
		subject := template.Must(template.New(string(name) + ".subject").Funcs(funcs).Parse(t.subject))
		body := template.Must(template.New(string(name) + ".body").Funcs(funcs).Parse(t.body))
		out[name] = [2]*template.Template{subject, body}
	}
	return out
}()

// Render fills the named template with data.
func Render(name TemplateType, data Data) (Message, error) {
	t, ok := compiled[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", name)
	}
	if data.To == "" {
		return Message{}, fmt.Errorf("render %s: recipient is empty", name)
	}

	var subject, body bytes.Buffer
	if err := t[0].Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t[1].Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}

	return Message{
		To:      data.To,
		Subject: subject.String(),
		Text:    body.String(),
	}, nil
}
