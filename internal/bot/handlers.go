package bot

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v72"
)

// HandleStripeWebhook receives checkout events from Stripe and activates
// premium for the paying user.
func (t *TelegramBot) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.logger.Errorw("failed to read webhook body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		t.logger.Error("missing Stripe signature header")
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}

	event, err := t.stripeClient.VerifyWebhookSignature(body, signature)
	if err != nil {
		t.logger.Errorw("failed to verify webhook signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			t.logger.Errorw("failed to parse checkout session", "error", err)
			http.Error(w, "Failed to parse event data", http.StatusBadRequest)
			return
		}

		if session.ClientReferenceID == "" {
			t.logger.Errorw("missing client reference ID", "session_id", session.ID)
			http.Error(w, "Missing client reference ID", http.StatusBadRequest)
			return
		}

		userID, err := strconv.ParseInt(session.ClientReferenceID, 10, 64)
		if err != nil {
			t.logger.Errorw("invalid client reference ID", "error", err, "value", session.ClientReferenceID)
			http.Error(w, "Invalid client reference ID", http.StatusBadRequest)
			return
		}

		// Activate in the background so the webhook responds quickly.
		go t.handlePremiumActivated(userID)
		t.logger.Infow("premium activation started", "user_id", userID, "session_id", session.ID)

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			t.logger.Errorw("failed to parse payment intent", "error", err)
			break
		}
		t.logger.Errorw("payment failed", "payment_id", intent.ID, "error", intent.LastPaymentError)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}
