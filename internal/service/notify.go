package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

const httpStatusThreshold = 300

// ResetNotifier posts password-reset events to an external delivery hook.
// Formatting and sending the actual email lives behind that hook; the core
// only hands over the credential. Delivery is fire-and-forget: failures are
// logged, never surfaced to the requester.
type ResetNotifier struct {
	client    *http.Client
	log       *zap.SugaredLogger
	notifyURL string
}

func NewResetNotifier(log *zap.SugaredLogger, notifyURL string) *ResetNotifier {
	return &ResetNotifier{
		client:    &http.Client{},
		log:       log,
		notifyURL: notifyURL,
	}
}

func (n *ResetNotifier) NotifyPasswordReset(ctx context.Context, email, token string) {
	go func() {
		if n.notifyURL == "" {
			n.log.Debugw("reset notify URL not configured, dropping notification", "email", email)
			return
		}

		payload, err := json.Marshal(map[string]string{
			"event": "password_reset_requested",
			"email": email,
			"token": token,
		})
		if err != nil {
			n.log.Errorw("failed to marshal reset notification", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyURL, bytes.NewBuffer(payload))
		if err != nil {
			n.log.Errorw("failed to create reset notification request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.log.Errorw("failed to send reset notification", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= httpStatusThreshold {
			n.log.Warnw("reset notification returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
